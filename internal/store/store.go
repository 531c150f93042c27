package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/annolab/annolab/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		is_model INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schemas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		schema_id INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		archived INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (schema_id) REFERENCES schemas(id)
	);

	CREATE TABLE IF NOT EXISTS project_videos (
		project_id INTEGER NOT NULL,
		video_id INTEGER NOT NULL,
		PRIMARY KEY (project_id, video_id),
		FOREIGN KEY (project_id) REFERENCES projects(id),
		FOREIGN KEY (video_id) REFERENCES videos(id)
	);

	CREATE TABLE IF NOT EXISTS question_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		schema_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_auto_submit INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (schema_id) REFERENCES schemas(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		default_option TEXT,
		display_order INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (group_id) REFERENCES question_groups(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		answer_value TEXT NOT NULL,
		confidence_score REAL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (video_id, project_id, question_id, user_id),
		FOREIGN KEY (video_id) REFERENCES videos(id),
		FOREIGN KEY (project_id) REFERENCES projects(id),
		FOREIGN KEY (question_id) REFERENCES questions(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS ground_truths (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		answer_value TEXT NOT NULL,
		original_value TEXT NOT NULL,
		reviewer_id INTEGER NOT NULL,
		modified_by_admin INTEGER,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL,
		UNIQUE (video_id, project_id, question_id),
		FOREIGN KEY (video_id) REFERENCES videos(id),
		FOREIGN KEY (project_id) REFERENCES projects(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS answer_reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		answer_id INTEGER NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		reviewer_id INTEGER,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (answer_id) REFERENCES answers(id)
	);

	CREATE TABLE IF NOT EXISTS auto_submit_runs (
		session_id TEXT NOT NULL,
		project_id INTEGER NOT NULL,
		PRIMARY KEY (session_id, project_id)
	);

	CREATE TABLE IF NOT EXISTS lab_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateVideo inserts a video row created by ingestion.
func (s *Store) CreateVideo(v model.Video) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO videos (uid, url, archived, created_at) VALUES (?, ?, ?, ?)`,
		v.UID, v.URL, v.Archived, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetVideo returns a video by ID, or nil if absent.
func (s *Store) GetVideo(id int64) (*model.Video, error) {
	return s.scanVideo(s.db.QueryRow(
		`SELECT id, uid, url, archived, created_at FROM videos WHERE id = ?`, id,
	))
}

// GetVideoByUID returns a video by its immutable uid, or nil if absent.
func (s *Store) GetVideoByUID(uid string) (*model.Video, error) {
	return s.scanVideo(s.db.QueryRow(
		`SELECT id, uid, url, archived, created_at FROM videos WHERE uid = ?`, uid,
	))
}

func (s *Store) scanVideo(row *sql.Row) (*model.Video, error) {
	var v model.Video
	err := row.Scan(&v.ID, &v.UID, &v.URL, &v.Archived, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateSchema inserts a schema.
func (s *Store) CreateSchema(name string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO schemas (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSchema returns a schema by ID, or nil if absent.
func (s *Store) GetSchema(id int64) (*model.Schema, error) {
	var sc model.Schema
	err := s.db.QueryRow(`SELECT id, name FROM schemas WHERE id = ?`, id).Scan(&sc.ID, &sc.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// CreateProject inserts a project.
func (s *Store) CreateProject(p model.Project) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO projects (name, schema_id, description, archived, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.SchemaID, p.Description, p.Archived, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetProject returns a project by ID, or nil if absent.
func (s *Store) GetProject(id int64) (*model.Project, error) {
	var p model.Project
	err := s.db.QueryRow(
		`SELECT id, name, schema_id, description, archived, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.SchemaID, &p.Description, &p.Archived, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddVideoToProject links a video into a project's working set.
// Adding the same video twice is a no-op.
func (s *Store) AddVideoToProject(projectID, videoID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO project_videos (project_id, video_id) VALUES (?, ?)
		 ON CONFLICT(project_id, video_id) DO NOTHING`,
		projectID, videoID,
	)
	return err
}

// ListProjectVideos returns the project's videos, excluding archived ones.
func (s *Store) ListProjectVideos(projectID int64) ([]model.Video, error) {
	rows, err := s.db.Query(
		`SELECT v.id, v.uid, v.url, v.archived, v.created_at
		 FROM videos v
		 JOIN project_videos pv ON pv.video_id = v.id
		 WHERE pv.project_id = ? AND v.archived = 0
		 ORDER BY v.id`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var videos []model.Video
	for rows.Next() {
		var v model.Video
		if err := rows.Scan(&v.ID, &v.UID, &v.URL, &v.Archived, &v.CreatedAt); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// CreateGroup inserts a question group.
func (s *Store) CreateGroup(g model.QuestionGroup) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO question_groups (schema_id, title, description, is_auto_submit) VALUES (?, ?, ?, ?)`,
		g.SchemaID, g.Title, g.Description, g.IsAutoSubmit,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetGroup returns a question group by ID, or nil if absent.
func (s *Store) GetGroup(id int64) (*model.QuestionGroup, error) {
	var g model.QuestionGroup
	err := s.db.QueryRow(
		`SELECT id, schema_id, title, description, is_auto_submit FROM question_groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.SchemaID, &g.Title, &g.Description, &g.IsAutoSubmit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroupsBySchema returns a schema's question groups in ID order.
func (s *Store) ListGroupsBySchema(schemaID int64) ([]model.QuestionGroup, error) {
	rows, err := s.db.Query(
		`SELECT id, schema_id, title, description, is_auto_submit FROM question_groups
		 WHERE schema_id = ? ORDER BY id`, schemaID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []model.QuestionGroup
	for rows.Next() {
		var g model.QuestionGroup
		if err := rows.Scan(&g.ID, &g.SchemaID, &g.Title, &g.Description, &g.IsAutoSubmit); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// InsertQuestion stores a question. Options are serialized as JSON.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return 0, fmt.Errorf("marshal options: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (group_id, text, type, options, default_option, display_order)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.GroupID, q.Text, q.Type, string(opts), q.DefaultOption, q.DisplayOrder,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const questionCols = `id, group_id, text, type, options, default_option, display_order`

func scanQuestion(scan func(dest ...any) error) (model.Question, error) {
	var q model.Question
	var opts string
	if err := scan(&q.ID, &q.GroupID, &q.Text, &q.Type, &opts, &q.DefaultOption, &q.DisplayOrder); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
		return q, fmt.Errorf("unmarshal options for question %d: %w", q.ID, err)
	}
	return q, nil
}

// GetQuestion returns a question by ID, or nil if absent.
func (s *Store) GetQuestion(id int64) (*model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionCols+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuestionByText returns the group's question with the given text,
// or nil if absent. Question text is unique within a group.
func (s *Store) GetQuestionByText(groupID int64, text string) (*model.Question, error) {
	row := s.db.QueryRow(
		`SELECT `+questionCols+` FROM questions WHERE group_id = ? AND text = ?`, groupID, text,
	)
	q, err := scanQuestion(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQuestionsForGroup returns the group's questions in declared order.
func (s *Store) ListQuestionsForGroup(groupID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT `+questionCols+` FROM questions WHERE group_id = ? ORDER BY display_order, id`, groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// MarkAutoSubmitRun records that the auto-submit trigger fired for the
// given auth session in the given project. Returns true if this call
// was the first for the pair.
func (s *Store) MarkAutoSubmitRun(sessionID string, projectID int64) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO auto_submit_runs (session_id, project_id) VALUES (?, ?)
		 ON CONFLICT(session_id, project_id) DO NOTHING`,
		sessionID, projectID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasAutoSubmitRun reports whether the auto-submit trigger already
// fired for the given auth session in the given project.
func (s *Store) HasAutoSubmitRun(sessionID string, projectID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM auto_submit_runs WHERE session_id = ? AND project_id = ?`,
		sessionID, projectID,
	).Scan(&n)
	return n > 0, err
}
