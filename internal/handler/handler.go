package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/annolab/annolab/internal/annotation"
	"github.com/annolab/annolab/internal/consensus"
	appI18n "github.com/annolab/annolab/internal/i18n"
	"github.com/annolab/annolab/internal/model"
	"github.com/annolab/annolab/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	svc    *annotation.Service
	agg    *consensus.Aggregator
	runner *consensus.Runner
	config model.ServerConfig
}

// New creates a new Handler.
func New(s *store.Store, svc *annotation.Service, agg *consensus.Aggregator, runner *consensus.Runner, cfg model.ServerConfig) *Handler {
	return &Handler{store: s, svc: svc, agg: agg, runner: runner, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(h.csrfMiddleware)

		r.Post("/logout", h.handleLogout)

		r.Route("/api", func(r chi.Router) {
			r.Post("/projects/{projectID}/enter", h.handleEnterProject)
			r.Post("/answers", h.handleSubmitAnswers)
			r.Get("/answers", h.handleGetAnswer)
			r.Get("/questions/{questionID}/answers", h.handleAnswersForQuestion)
			r.Get("/questions/{questionID}/locked", h.handleQuestionLocked)
			r.Get("/groups/{groupID}/editable", h.handleEditableQuestions)
			r.Post("/groundtruth", h.handleSubmitGroundTruth)
			r.Post("/groundtruth/override", h.handleOverrideGroundTruth)
			r.Get("/groundtruth", h.handleGetGroundTruth)
			r.Get("/groundtruth/group", h.handleGroundTruthForGroup)
			r.Post("/answers/{answerID}/review", h.handleReviewAnswer)
			r.Get("/answers/{answerID}/review", h.handleGetReview)
			r.Get("/completion", h.handleCompletion)
			r.Post("/consensus/majority", h.handleMajority)
			r.Post("/consensus/stats", h.handleStats)
			r.With(requireRole(model.UserRoleReviewer, model.UserRoleMetaReviewer)).
				Post("/autosubmit", h.handleAutoSubmitSweep)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleMetaReviewer))
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
			r.Post("/schema", h.handleUploadSchema)
			r.Post("/videos", h.handleUploadVideos)
			r.Post("/projects", h.handleCreateProject)
		})
	})
}

// BasePathMiddleware strips the configured base path so sub-path
// deployments route the same as root deployments.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.BasePath != "" {
			r.URL.Path = strings.TrimPrefix(r.URL.Path, h.config.BasePath)
			if r.URL.Path == "" {
				r.URL.Path = "/"
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps the annotation error taxonomy onto HTTP statuses,
// with localized messages so the UI can explain a rejection: an admin
// lock is surfaced distinctly from bad input.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *annotation.ValidationError
	var nferr *annotation.NotFoundError
	var lerr *annotation.LockedError
	ctx := r.Context()
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation",
			"message": appI18n.Td(ctx, "ValidationFailed", map[string]any{"Reason": verr.Reason}),
		})
	case errors.As(err, &nferr):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "not_found",
			"message": appI18n.Td(ctx, "NotFound", map[string]any{"Kind": nferr.Kind}),
		})
	case errors.As(err, &lerr):
		writeJSON(w, http.StatusLocked, map[string]any{
			"error":            "locked",
			"message":          appI18n.T(ctx, "GroundTruthLocked"),
			"locked_questions": lerr.QuestionIDs,
		})
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryInt64(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v, err == nil
}

type scopeResponse struct {
	VideoID   int64 `json:"video_id"`
	ProjectID int64 `json:"project_id"`
}

type answerValuePayload struct {
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type submitAnswersRequest struct {
	VideoID   int64                         `json:"video_id"`
	ProjectID int64                         `json:"project_id"`
	GroupID   int64                         `json:"group_id"`
	Answers   map[string]answerValuePayload `json:"answers"`
}

func (h *Handler) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	var req submitAnswersRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user := model.UserFromContext(r.Context())

	answers := make(map[string]annotation.AnswerValue, len(req.Answers))
	for text, av := range req.Answers {
		answers[text] = annotation.AnswerValue{Value: av.Value, Confidence: av.Confidence}
	}

	scope, err := h.svc.SubmitAnswers(req.VideoID, req.ProjectID, user.ID, req.GroupID, answers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"affected_scope": scopeResponse{VideoID: scope.VideoID, ProjectID: scope.ProjectID},
	})
}

type submitGroundTruthRequest struct {
	VideoID   int64             `json:"video_id"`
	ProjectID int64             `json:"project_id"`
	GroupID   int64             `json:"group_id"`
	Answers   map[string]string `json:"answers"`
}

func (h *Handler) handleSubmitGroundTruth(w http.ResponseWriter, r *http.Request) {
	var req submitGroundTruthRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user := model.UserFromContext(r.Context())

	scope, err := h.svc.SubmitGroundTruth(req.VideoID, req.ProjectID, user.ID, req.GroupID, req.Answers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"affected_scope": scopeResponse{VideoID: scope.VideoID, ProjectID: scope.ProjectID},
	})
}

func (h *Handler) handleOverrideGroundTruth(w http.ResponseWriter, r *http.Request) {
	var req submitGroundTruthRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user := model.UserFromContext(r.Context())

	scope, err := h.svc.OverrideGroundTruth(req.VideoID, req.ProjectID, user.ID, req.GroupID, req.Answers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"affected_scope": scopeResponse{VideoID: scope.VideoID, ProjectID: scope.ProjectID},
	})
}

func (h *Handler) handleGetGroundTruth(w http.ResponseWriter, r *http.Request) {
	videoID, ok1 := queryInt64(r, "video_id")
	projectID, ok2 := queryInt64(r, "project_id")
	questionID, ok3 := queryInt64(r, "question_id")
	if !ok1 || !ok2 || !ok3 {
		http.Error(w, "video_id, project_id, question_id required", http.StatusBadRequest)
		return
	}
	gt, err := h.svc.GetGroundTruth(videoID, projectID, questionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ground_truth": gt})
}

func (h *Handler) handleGroundTruthForGroup(w http.ResponseWriter, r *http.Request) {
	videoID, ok1 := queryInt64(r, "video_id")
	projectID, ok2 := queryInt64(r, "project_id")
	groupID, ok3 := queryInt64(r, "group_id")
	if !ok1 || !ok2 || !ok3 {
		http.Error(w, "video_id, project_id, group_id required", http.StatusBadRequest)
		return
	}
	truths, err := h.svc.GetGroundTruthForGroup(videoID, projectID, groupID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ground_truths": truths})
}

func (h *Handler) handleGetAnswer(w http.ResponseWriter, r *http.Request) {
	videoID, ok1 := queryInt64(r, "video_id")
	projectID, ok2 := queryInt64(r, "project_id")
	questionID, ok3 := queryInt64(r, "question_id")
	userID, ok4 := queryInt64(r, "user_id")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		http.Error(w, "video_id, project_id, question_id, user_id required", http.StatusBadRequest)
		return
	}
	answer, err := h.svc.GetAnswer(videoID, projectID, questionID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

func (h *Handler) handleAnswersForQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid question ID", http.StatusBadRequest)
		return
	}
	projectID, ok := queryInt64(r, "project_id")
	if !ok {
		http.Error(w, "project_id required", http.StatusBadRequest)
		return
	}
	answers, err := h.svc.GetAnswersForQuestion(projectID, questionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": answers})
}

func (h *Handler) handleQuestionLocked(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid question ID", http.StatusBadRequest)
		return
	}
	videoID, ok1 := queryInt64(r, "video_id")
	projectID, ok2 := queryInt64(r, "project_id")
	if !ok1 || !ok2 {
		http.Error(w, "video_id, project_id required", http.StatusBadRequest)
		return
	}
	locked, err := h.svc.IsQuestionLocked(videoID, projectID, questionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locked": locked})
}

func (h *Handler) handleEditableQuestions(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid group ID", http.StatusBadRequest)
		return
	}
	videoID, ok1 := queryInt64(r, "video_id")
	projectID, ok2 := queryInt64(r, "project_id")
	if !ok1 || !ok2 {
		http.Error(w, "video_id, project_id required", http.StatusBadRequest)
		return
	}
	editable, err := h.svc.EditableQuestions(videoID, projectID, groupID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	total, err := h.store.ListQuestionsForGroup(groupID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := map[string]any{"questions": editable}
	if locked := len(total) - len(editable); locked > 0 {
		resp["message"] = appI18n.Tp(r.Context(), "LockedQuestions", locked)
	}
	writeJSON(w, http.StatusOK, resp)
}

type reviewRequest struct {
	Status model.ReviewStatus `json:"status"`
}

func (h *Handler) handleReviewAnswer(w http.ResponseWriter, r *http.Request) {
	answerID, err := strconv.ParseInt(chi.URLParam(r, "answerID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid answer ID", http.StatusBadRequest)
		return
	}
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user := model.UserFromContext(r.Context())

	// Surface the previous reviewer so humans can avoid clobbering.
	prev, err := h.svc.GetReview(answerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var previousReviewer string
	if prev.ReviewerID != nil {
		if u, err := h.store.GetUserByID(*prev.ReviewerID); err == nil && u != nil {
			previousReviewer = u.DisplayName
		}
	}

	if _, err := h.svc.ReviewAnswer(answerID, user.ID, req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := map[string]any{"message": appI18n.T(r.Context(), "ReviewSaved")}
	if previousReviewer != "" {
		resp["previous_reviewer"] = appI18n.Td(r.Context(), "PreviousReviewer", map[string]any{"Name": previousReviewer})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetReview(w http.ResponseWriter, r *http.Request) {
	answerID, err := strconv.ParseInt(chi.URLParam(r, "answerID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid answer ID", http.StatusBadRequest)
		return
	}
	review, err := h.svc.GetReview(answerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"review": review})
}

func (h *Handler) handleCompletion(w http.ResponseWriter, r *http.Request) {
	videoID, ok1 := queryInt64(r, "video_id")
	projectID, ok2 := queryInt64(r, "project_id")
	groupID, ok3 := queryInt64(r, "group_id")
	if !ok1 || !ok2 || !ok3 {
		http.Error(w, "video_id, project_id, group_id required", http.StatusBadRequest)
		return
	}
	user := model.UserFromContext(r.Context())
	userID := user.ID
	if id, ok := queryInt64(r, "user_id"); ok {
		userID = id
	}
	role := user.Role
	if v := r.URL.Query().Get("role"); v != "" {
		role = model.UserRole(v)
	}

	progress, err := h.svc.GroupProgress(videoID, projectID, groupID, userID, role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": progress})
}
