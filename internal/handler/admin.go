package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/annolab/annolab/internal/model"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"id":           u.ID,
			"username":     u.Username,
			"display_name": u.DisplayName,
			"role":         u.Role,
			"is_model":     u.IsModel,
			"active":       u.Active,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
	IsModel     bool           `json:"is_model"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}
	switch req.Role {
	case model.UserRoleAnnotator, model.UserRoleReviewer, model.UserRoleMetaReviewer:
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	if req.IsModel && req.Role != model.UserRoleAnnotator {
		http.Error(w, "model users must be annotators", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		IsModel:      req.IsModel,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "error", err)
		http.Error(w, "failed to create user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"toggled": id})
}

// handleUploadSchema imports question groups from an uploaded JSON
// file into a new or existing schema. Files are deduplicated by
// content hash: a re-upload of the same bytes is reported as a
// duplicate, and a changed file under a known name is rejected to
// avoid breaking questions already referenced by answers.
func (h *Handler) handleUploadSchema(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("schema_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, map[string]any{"duplicate": true})
		return
	}
	if storedHash != "" {
		http.Error(w, "schema file changed since last import; re-importing would break existing answers", http.StatusConflict)
		return
	}

	schemaName := r.FormValue("schema_name")
	if schemaName == "" {
		schemaName = header.Filename
	}

	var groups []model.GroupImport
	if err := json.Unmarshal(data, &groups); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	schemaID, count, err := h.store.ImportSchema(schemaName, groups)
	if err != nil {
		slog.Error("failed to import schema", "error", err)
		http.Error(w, "failed to import schema: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.store.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("uploaded schema via admin", "filename", header.Filename, "groups", len(groups), "questions", count)
	writeJSON(w, http.StatusCreated, map[string]any{"schema_id": schemaID, "questions": count})
}

type uploadVideosRequest struct {
	Videos []model.VideoImport `json:"videos"`
}

// handleUploadVideos ingests a video manifest, generating a UUID uid
// for entries that do not carry one. Entries whose uid already exists
// are skipped.
func (h *Handler) handleUploadVideos(w http.ResponseWriter, r *http.Request) {
	var req uploadVideosRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var created, skipped int
	for _, vi := range req.Videos {
		uid := vi.UID
		if uid == "" {
			uid = uuid.NewString()
		} else {
			existing, err := h.store.GetVideoByUID(uid)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			if existing != nil {
				skipped++
				continue
			}
		}
		if _, err := h.store.CreateVideo(model.Video{UID: uid, URL: vi.URL}); err != nil {
			slog.Error("failed to create video", "url", vi.URL, "error", err)
			http.Error(w, "failed to create video: "+err.Error(), http.StatusInternalServerError)
			return
		}
		created++
	}

	slog.Info("ingested videos via admin", "created", created, "skipped", skipped)
	writeJSON(w, http.StatusCreated, map[string]any{"created": created, "skipped": skipped})
}

type createProjectRequest struct {
	Name        string   `json:"name"`
	SchemaID    int64    `json:"schema_id"`
	Description string   `json:"description"`
	VideoUIDs   []string `json:"video_uids"`
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	schema, err := h.store.GetSchema(req.SchemaID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if schema == nil {
		http.Error(w, "schema not found", http.StatusNotFound)
		return
	}

	projectID, err := h.store.CreateProject(model.Project{
		Name:        req.Name,
		SchemaID:    req.SchemaID,
		Description: req.Description,
	})
	if err != nil {
		slog.Error("failed to create project", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var linked int
	for _, uid := range req.VideoUIDs {
		video, err := h.store.GetVideoByUID(uid)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if video == nil {
			http.Error(w, "video "+uid+" not found", http.StatusNotFound)
			return
		}
		if err := h.store.AddVideoToProject(projectID, video.ID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		linked++
	}

	slog.Info("created project", "id", projectID, "name", req.Name, "videos", linked)
	writeJSON(w, http.StatusCreated, map[string]any{"project_id": projectID, "videos_linked": linked})
}
