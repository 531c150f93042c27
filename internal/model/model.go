package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level in the workbench.
type UserRole string

const (
	// UserRoleAnnotator answers questions about videos (human or model).
	UserRoleAnnotator UserRole = "annotator"
	// UserRoleReviewer curates ground truth from annotator answers.
	UserRoleReviewer UserRole = "reviewer"
	// UserRoleMetaReviewer may override and lock ground truth.
	UserRoleMetaReviewer UserRole = "meta_reviewer"
)

// User represents a workbench user. Model users are automated
// annotators that attach a confidence score to each answer.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	IsModel      bool
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type sessionCtxKey struct{}

// ContextWithSessionToken stores the auth session token in context.
func ContextWithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, token)
}

// SessionTokenFromContext retrieves the auth session token from context.
func SessionTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(sessionCtxKey{}).(string)
	return t
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// QuestionType distinguishes single-choice from free-text questions.
type QuestionType string

const (
	// QuestionSingle has a declared option set; answers must be one of them.
	QuestionSingle QuestionType = "single"
	// QuestionDescription is free text, judged via answer reviews.
	QuestionDescription QuestionType = "description"
)

// ReviewStatus is a reviewer's verdict on one raw annotator answer.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Video is a long-lived annotation subject created by ingestion.
type Video struct {
	ID        int64     `json:"id"`
	UID       string    `json:"uid"`
	URL       string    `json:"url"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// Project scopes answers and ground truth to one annotation effort
// over a question schema.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	SchemaID    int64     `json:"schema_id"`
	Description string    `json:"description"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
}

// Schema is a named collection of question groups.
type Schema struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// QuestionGroup is the atomic unit of submission: its questions are
// answered and reviewed together in one transaction.
type QuestionGroup struct {
	ID           int64  `json:"id"`
	SchemaID     int64  `json:"schema_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	IsAutoSubmit bool   `json:"is_auto_submit"`
}

// Question belongs to exactly one group and is immutable after creation.
// Options and DefaultOption are only meaningful for single-type questions.
type Question struct {
	ID            int64        `json:"id"`
	GroupID       int64        `json:"group_id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	DefaultOption *string      `json:"default_option,omitempty"`
	DisplayOrder  int          `json:"display_order"`
}

// Answer is one annotator's raw answer, keyed by
// (video, project, question, user). Resubmission overwrites it.
type Answer struct {
	ID              int64     `json:"id"`
	VideoID         int64     `json:"video_id"`
	ProjectID       int64     `json:"project_id"`
	QuestionID      int64     `json:"question_id"`
	UserID          int64     `json:"user_id"`
	AnswerValue     string    `json:"answer_value"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GroundTruth is the single authoritative answer per
// (video, project, question). ModifiedByAdmin is a one-way lock: once
// set, reviewers can no longer edit the row.
type GroundTruth struct {
	ID              int64     `json:"id"`
	VideoID         int64     `json:"video_id"`
	ProjectID       int64     `json:"project_id"`
	QuestionID      int64     `json:"question_id"`
	AnswerValue     string    `json:"answer_value"`
	OriginalValue   string    `json:"original_value"`
	ReviewerID      int64     `json:"reviewer_id"`
	ModifiedByAdmin *int64    `json:"modified_by_admin,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ModifiedAt      time.Time `json:"modified_at"`
}

// Locked reports whether the row carries an admin lock.
func (gt GroundTruth) Locked() bool {
	return gt.ModifiedByAdmin != nil
}

// AnswerReview is a reviewer's qualitative judgment of one raw answer,
// used for description-type questions. Last writer wins.
type AnswerReview struct {
	ID         int64        `json:"id"`
	AnswerID   int64        `json:"answer_id"`
	Status     ReviewStatus `json:"status"`
	ReviewerID *int64       `json:"reviewer_id,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// GroupProgress reports per-role completion of one question group for
// one video, consumed by dashboards.
type GroupProgress struct {
	GroupID   int64   `json:"group_id"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
	Complete  bool    `json:"complete"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
}

// GroupImport is used for loading question groups from schema JSON.
type GroupImport struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	IsAutoSubmit bool             `json:"is_auto_submit"`
	Questions    []QuestionImport `json:"questions"`
}

// QuestionImport is one question inside a schema JSON file.
type QuestionImport struct {
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	DefaultOption *string      `json:"default_option,omitempty"`
}

// VideoImport is one entry of a video ingestion manifest.
type VideoImport struct {
	URL string `json:"url"`
	UID string `json:"uid,omitempty"`
}
