package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/annolab/annolab/internal/annotation"
	"github.com/annolab/annolab/internal/consensus"
	"github.com/annolab/annolab/internal/handler"
	appI18n "github.com/annolab/annolab/internal/i18n"
	"github.com/annolab/annolab/internal/llm"
	"github.com/annolab/annolab/internal/model"
	"github.com/annolab/annolab/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "annolab",
		Short: "Video annotation workbench with consensus-driven ground truth",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), autosubmitCmd(), annotateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `annolab --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP annotation server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "annolab.db", "SQLite database path")
	f.StringSliceP("schemas", "s", nil, "Paths to question schema JSON files (repeatable)")
	f.StringSlice("videos", nil, "Paths to video manifest JSON files (repeatable)")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /lab)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set ANNOLAB_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a project's ground truth and answers as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "annolab.db", "SQLite database path")
	f.Int64("project-id", 0, "Project to export (required)")
	f.Bool("with-stats", true, "Include per-video consensus and accuracy rates")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("project-id")

	return cmd
}

func autosubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autosubmit",
		Short: "Sweep a project's videos, writing each question's majority value",
		RunE:  runAutosubmit,
	}
	f := cmd.Flags()
	f.String("db", "annolab.db", "SQLite database path")
	f.Int64("project-id", 0, "Project to sweep (required)")
	f.Int64("group-id", 0, "Question group to sweep (required)")
	f.String("actor", "", "Username the values are written as (required)")
	f.String("target", string(consensus.TargetGroundTruth),
		"Where majority values are written (ground_truth, override)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("project-id")
	_ = cmd.MarkFlagRequired("group-id")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func annotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Run a model annotator over a project's videos",
		RunE:  runAnnotate,
	}
	f := cmd.Flags()
	f.String("db", "annolab.db", "SQLite database path")
	f.Int64("project-id", 0, "Project to annotate (required)")
	f.Int64("group-id", 0, "Question group to annotate (required)")
	f.String("model-user", "", "Username of the model annotator account (required)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("project-id")
	_ = cmd.MarkFlagRequired("group-id")
	_ = cmd.MarkFlagRequired("model-user")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ANNOLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("annolab")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/annolab")
	v.AddConfigPath("/etc/annolab")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Stale sessions also hold auto-submit markers, drop both.
	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("cleanup expired sessions", "error", err)
	}

	instanceID, err := db.GetMetadata("instance_id")
	if err != nil {
		return fmt.Errorf("read instance id: %w", err)
	}
	if instanceID == "" {
		instanceID = uuid.NewString()
		if err := db.SetMetadata("instance_id", instanceID); err != nil {
			return fmt.Errorf("store instance id: %w", err)
		}
	}

	// Load question schemas and video manifests.
	if err := loadSchemas(db, v.GetStringSlice("schemas")); err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	if err := loadVideoManifests(db, v.GetStringSlice("videos")); err != nil {
		return fmt.Errorf("load videos: %w", err)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	}

	svc := annotation.New(db)
	agg := consensus.New(db)
	runner := consensus.NewRunner(agg, svc, db)

	h := handler.New(db, svc, agg, runner, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"base_path", basePath,
		"instance_id", instanceID,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	projectID := v.GetInt64("project-id")
	export, err := db.ExportProject(projectID)
	if err != nil {
		return fmt.Errorf("export project: %w", err)
	}

	if v.GetBool("with-stats") {
		if err := decorateStats(db, export, projectID); err != nil {
			return fmt.Errorf("compute stats: %w", err)
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// decorateStats fills each exported video's consensus and accuracy
// rates over the project's full question set.
func decorateStats(db *store.Store, export *model.ProjectExport, projectID int64) error {
	questionIDs, err := projectQuestionIDs(db, projectID)
	if err != nil {
		return err
	}
	agg := consensus.New(db)
	for i := range export.Videos {
		video, err := db.GetVideoByUID(export.Videos[i].VideoUID)
		if err != nil {
			return err
		}
		if video == nil {
			continue
		}
		cons, err := agg.ComputeConsensusRate(video.ID, projectID, questionIDs, nil)
		if err != nil {
			return err
		}
		acc, err := agg.ComputeAccuracyRate(video.ID, projectID, questionIDs, nil)
		if err != nil {
			return err
		}
		export.Videos[i].ConsensusRate = &cons
		export.Videos[i].AccuracyRate = &acc
	}
	return nil
}

func projectQuestionIDs(db *store.Store, projectID int64) ([]int64, error) {
	project, err := db.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %d not found", projectID)
	}
	groups, err := db.ListGroupsBySchema(project.SchemaID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, g := range groups {
		questions, err := db.ListQuestionsForGroup(g.ID)
		if err != nil {
			return nil, err
		}
		for _, q := range questions {
			ids = append(ids, q.ID)
		}
	}
	return ids, nil
}

func runAutosubmit(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	actor, err := db.GetUserByUsername(v.GetString("actor"))
	if err != nil {
		return fmt.Errorf("look up actor: %w", err)
	}
	if actor == nil {
		return fmt.Errorf("user %q not found", v.GetString("actor"))
	}

	// Raw answers are written only by the annotator entry trigger.
	target := consensus.Target(v.GetString("target"))
	switch target {
	case consensus.TargetGroundTruth, consensus.TargetOverride:
	default:
		return fmt.Errorf("invalid target %q, want ground_truth or override", target)
	}

	projectID := v.GetInt64("project-id")
	groupID := v.GetInt64("group-id")

	videos, err := db.ListProjectVideos(projectID)
	if err != nil {
		return fmt.Errorf("list project videos: %w", err)
	}
	videoIDs := make([]int64, 0, len(videos))
	for _, video := range videos {
		videoIDs = append(videoIDs, video.ID)
	}

	svc := annotation.New(db)
	agg := consensus.New(db)
	runner := consensus.NewRunner(agg, svc, db)

	slog.Info("starting auto-submit sweep",
		"project_id", projectID, "group_id", groupID,
		"videos", len(videoIDs), "target", target, "actor", actor.Username)

	err = runner.Run(videoIDs, projectID, groupID, actor.ID, nil, target, func(p consensus.Progress) {
		slog.Info("sweep progress", "current", p.Current, "total", p.Total, "message", p.Message)
	})
	if err != nil {
		return fmt.Errorf("sweep finished with errors: %w", err)
	}
	slog.Info("sweep complete", "videos", len(videoIDs))
	return nil
}

func runAnnotate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	user, err := db.GetUserByUsername(v.GetString("model-user"))
	if err != nil {
		return fmt.Errorf("look up model user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %q not found", v.GetString("model-user"))
	}
	if !user.IsModel {
		return fmt.Errorf("user %q is not a model annotator account", user.Username)
	}

	client := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	projectID := v.GetInt64("project-id")
	groupID := v.GetInt64("group-id")

	questions, err := db.ListQuestionsForGroup(groupID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return fmt.Errorf("group %d has no questions", groupID)
	}
	videos, err := db.ListProjectVideos(projectID)
	if err != nil {
		return fmt.Errorf("list project videos: %w", err)
	}

	svc := annotation.New(db)

	for i, video := range videos {
		answers := make(map[string]annotation.AnswerValue, len(questions))
		for _, q := range questions {
			result, err := client.AnnotateQuestion(ctx, video, q)
			if err != nil {
				slog.Error("annotation failed", "video", video.UID, "question", q.Text, "error", err)
				// A group submission must cover every question, so an
				// unanswerable one goes in empty.
				answers[q.Text] = annotation.AnswerValue{}
				continue
			}
			confidence := result.Confidence
			answers[q.Text] = annotation.AnswerValue{
				Value:      result.Answer,
				Confidence: &confidence,
			}
		}
		if _, err := svc.SubmitAnswers(video.ID, projectID, user.ID, groupID, answers); err != nil {
			slog.Error("submit failed", "video", video.UID, "error", err)
			continue
		}
		slog.Info("annotated video", "current", i+1, "total", len(videos), "uid", video.UID)
	}
	return nil
}

// loadSchemas imports question schema files, skipping files already
// imported with the same content hash. A file that changed since its
// first import is skipped with a warning: its questions may already be
// referenced by answers.
func loadSchemas(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("schema file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("schema file changed since last import, skipping to avoid breaking existing answers",
				"path", path)
			continue
		}

		var groups []model.GroupImport
		if err := json.Unmarshal(data, &groups); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		schemaID, count, err := db.ImportSchema(schemaNameFromPath(path), groups)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported schema", "path", path, "schema_id", schemaID, "questions", count)
	}

	return nil
}

func schemaNameFromPath(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".json")
}

// loadVideoManifests ingests video manifest files. Entries without a
// uid get a generated one; entries whose uid already exists are skipped.
func loadVideoManifests(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("video manifest unchanged, skipping", "path", path)
			continue
		}

		var imports []model.VideoImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		var created, skipped int
		for _, vi := range imports {
			uid := vi.UID
			if uid == "" {
				uid = uuid.NewString()
			} else {
				existing, err := db.GetVideoByUID(uid)
				if err != nil {
					return fmt.Errorf("look up video %s: %w", uid, err)
				}
				if existing != nil {
					skipped++
					continue
				}
			}
			if _, err := db.CreateVideo(model.Video{UID: uid, URL: vi.URL}); err != nil {
				return fmt.Errorf("create video %s: %w", vi.URL, err)
			}
			created++
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("ingested videos", "path", path, "created", created, "skipped", skipped)
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or ANNOLAB_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleMetaReviewer,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
