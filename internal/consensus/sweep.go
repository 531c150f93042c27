package consensus

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/annolab/annolab/internal/annotation"
	"github.com/annolab/annolab/internal/model"
	"github.com/annolab/annolab/internal/store"
)

// Target selects where a sweep writes its majority values.
type Target string

const (
	// TargetAnswers writes raw answers on behalf of an annotator.
	TargetAnswers Target = "answers"
	// TargetGroundTruth writes via reviewer ground-truth submission,
	// restricted to the editable subset of partially locked groups.
	TargetGroundTruth Target = "ground_truth"
	// TargetOverride writes via admin override, locking every question.
	TargetOverride Target = "override"
)

// Progress reports a sweep's position to its caller. Sweeps are
// bounded loops; they report but do not support mid-sweep cancellation.
type Progress struct {
	Current int
	Total   int
	Message string
}

// Runner executes batch auto-submit sweeps over a video subset,
// computing each question's majority value and writing it through the
// annotation service.
type Runner struct {
	agg   *Aggregator
	svc   *annotation.Service
	store *store.Store
}

// NewRunner creates a sweep runner.
func NewRunner(agg *Aggregator, svc *annotation.Service, st *store.Store) *Runner {
	return &Runner{agg: agg, svc: svc, store: st}
}

// Run sweeps the given videos, writing each group question's majority
// or default value as actorID via the chosen target. Per-video
// failures are reported through progress and collected; the sweep
// continues to the end.
func (r *Runner) Run(videoIDs []int64, projectID, groupID, actorID int64, selection []SelectedUser, target Target, progress func(Progress)) error {
	questions, err := r.store.ListQuestionsForGroup(groupID)
	if err != nil {
		return fmt.Errorf("list questions for group %d: %w", groupID, err)
	}

	report := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}

	total := len(videoIDs)
	var errs []error
	for i, videoID := range videoIDs {
		msg, err := r.sweepVideo(videoID, projectID, groupID, actorID, questions, selection, target)
		if err != nil {
			slog.Error("auto-submit sweep failed for video", "video_id", videoID, "error", err)
			errs = append(errs, fmt.Errorf("video %d: %w", videoID, err))
			msg = "failed: " + err.Error()
		}
		report(Progress{Current: i + 1, Total: total, Message: msg})
	}
	return errors.Join(errs...)
}

func (r *Runner) sweepVideo(videoID, projectID, groupID, actorID int64, questions []model.Question, selection []SelectedUser, target Target) (string, error) {
	candidates := questions
	if target == TargetGroundTruth {
		// Mirror the editable-subset pattern: drop locked questions
		// before submitting so a partially locked group still gets
		// its remaining values.
		editable, err := r.svc.EditableQuestions(videoID, projectID, groupID)
		if err != nil {
			return "", err
		}
		candidates = editable
		if len(candidates) == 0 {
			return "all questions locked, skipped", nil
		}
	}

	values, err := r.agg.BuildMajorityAnswers(videoID, projectID, candidates, selection)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "no majority values, skipped", nil
	}

	switch target {
	case TargetAnswers:
		// An unresolved question must not gain an answer row, and
		// SubmitAnswers demands full group coverage, so the video is
		// skipped unless every question resolved.
		if len(values) < len(questions) {
			return fmt.Sprintf("%d of %d questions unresolved, skipped",
				len(questions)-len(values), len(questions)), nil
		}
		submission := make(map[string]annotation.AnswerValue, len(questions))
		for _, q := range questions {
			submission[q.Text] = annotation.AnswerValue{Value: values[q.Text]}
		}
		if _, err := r.svc.SubmitAnswers(videoID, projectID, actorID, groupID, submission); err != nil {
			return "", err
		}
	case TargetGroundTruth:
		if _, err := r.svc.SubmitGroundTruth(videoID, projectID, actorID, groupID, values); err != nil {
			return "", err
		}
	case TargetOverride:
		if _, err := r.svc.OverrideGroundTruth(videoID, projectID, actorID, groupID, values); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown sweep target %q", target)
	}
	return fmt.Sprintf("submitted %d values", len(values)), nil
}
