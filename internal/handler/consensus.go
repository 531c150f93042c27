package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/annolab/annolab/internal/consensus"
	appI18n "github.com/annolab/annolab/internal/i18n"
	"github.com/annolab/annolab/internal/model"
)

type selectedUserPayload struct {
	UserID int64    `json:"user_id"`
	Weight *float64 `json:"weight,omitempty"`
}

func toSelection(payload []selectedUserPayload) []consensus.SelectedUser {
	selection := make([]consensus.SelectedUser, 0, len(payload))
	for _, p := range payload {
		selection = append(selection, consensus.SelectedUser{UserID: p.UserID, Weight: p.Weight})
	}
	return selection
}

type majorityRequest struct {
	VideoID    int64                 `json:"video_id"`
	ProjectID  int64                 `json:"project_id"`
	QuestionID int64                 `json:"question_id"`
	Selection  []selectedUserPayload `json:"selection"`
}

func (h *Handler) handleMajority(w http.ResponseWriter, r *http.Request) {
	var req majorityRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	value, ok, err := h.agg.ComputeMajority(req.VideoID, req.ProjectID, req.QuestionID, toSelection(req.Selection))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value, "resolved": ok})
}

type statsRequest struct {
	VideoID     int64                 `json:"video_id"`
	ProjectID   int64                 `json:"project_id"`
	QuestionIDs []int64               `json:"question_ids"`
	Selection   []selectedUserPayload `json:"selection"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	selection := toSelection(req.Selection)

	consensusRate, err := h.agg.ComputeConsensusRate(req.VideoID, req.ProjectID, req.QuestionIDs, selection)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	accuracyRate, err := h.agg.ComputeAccuracyRate(req.VideoID, req.ProjectID, req.QuestionIDs, selection)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	confidence, err := h.agg.ComputeConfidenceScore(req.VideoID, req.ProjectID, req.QuestionIDs, selection)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"consensus_rate":   consensusRate,
		"accuracy_rate":    accuracyRate,
		"confidence_score": confidence,
	})
}

type sweepRequest struct {
	VideoIDs  []int64               `json:"video_ids"`
	ProjectID int64                 `json:"project_id"`
	GroupID   int64                 `json:"group_id"`
	ActorID   *int64                `json:"actor_id,omitempty"`
	Selection []selectedUserPayload `json:"selection"`
	Target    consensus.Target      `json:"target"`
}

// handleAutoSubmitSweep runs an operator-triggered batch sweep over an
// explicit video subset. Progress lines are collected and returned so
// the caller sees current/total/message for every video.
func (h *Handler) handleAutoSubmitSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// Operator sweeps write ground truth only. Raw answers are written
	// solely by the annotator entry trigger.
	if req.Target != consensus.TargetGroundTruth && req.Target != consensus.TargetOverride {
		http.Error(w, "target must be ground_truth or override", http.StatusBadRequest)
		return
	}
	user := model.UserFromContext(r.Context())
	if req.Target == consensus.TargetOverride && user.Role != model.UserRoleMetaReviewer {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":   "forbidden",
			"message": appI18n.T(r.Context(), "Forbidden"),
		})
		return
	}
	actorID := user.ID
	if req.ActorID != nil {
		actorID = *req.ActorID
	}

	var progress []consensus.Progress
	err := h.runner.Run(req.VideoIDs, req.ProjectID, req.GroupID, actorID,
		toSelection(req.Selection), req.Target,
		func(p consensus.Progress) { progress = append(progress, p) })
	if err != nil {
		slog.Warn("sweep finished with errors", "error", err)
	}

	resp := map[string]any{"progress": progress}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEnterProject fires the annotator auto-submit trigger: once per
// (project, auth session), every auto-submit-flagged group in the
// project's schema gets majority/default answers filled in for the
// entering annotator across the project's videos.
func (h *Handler) handleEnterProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid project ID", http.StatusBadRequest)
		return
	}
	user := model.UserFromContext(r.Context())
	if user.Role != model.UserRoleAnnotator {
		writeJSON(w, http.StatusOK, map[string]any{"auto_submit": false})
		return
	}

	token := model.SessionTokenFromContext(r.Context())
	ran, err := h.store.HasAutoSubmitRun(token, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ran {
		writeJSON(w, http.StatusOK, map[string]any{"auto_submit": false})
		return
	}

	project, err := h.store.GetProject(projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if project == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	groups, err := h.store.ListGroupsBySchema(project.SchemaID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	videos, err := h.store.ListProjectVideos(projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	videoIDs := make([]int64, 0, len(videos))
	for _, v := range videos {
		videoIDs = append(videoIDs, v.ID)
	}

	var swept int
	for _, g := range groups {
		if !g.IsAutoSubmit {
			continue
		}
		err := h.runner.Run(videoIDs, projectID, g.ID, user.ID, nil, consensus.TargetAnswers, nil)
		if err != nil {
			slog.Warn("entry auto-submit failed for group", "group_id", g.ID, "error", err)
			continue
		}
		swept++
	}

	// A fully failed sweep keeps the trigger armed for the next entry.
	if swept > 0 {
		if _, err := h.store.MarkAutoSubmitRun(token, projectID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	resp := map[string]any{"auto_submit": swept > 0}
	if swept > 0 {
		resp["message"] = appI18n.Tp(r.Context(), "AutoSubmitTriggered", len(videoIDs))
	}
	writeJSON(w, http.StatusOK, resp)
}
