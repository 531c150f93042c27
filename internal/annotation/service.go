// Package annotation implements the answer lifecycle, the ground-truth
// state machine, answer review tracking, and completion evaluation.
// The store owns persistence; this package owns the rules.
package annotation

import (
	"log/slog"

	"github.com/annolab/annolab/internal/model"
	"github.com/annolab/annolab/internal/store"
)

// Scope identifies the slice of state affected by a write, sufficient
// for an external read-through cache to invalidate correctly.
type Scope struct {
	VideoID   int64
	ProjectID int64
}

// Service applies annotation business rules on top of the store.
type Service struct {
	store   *store.Store
	onWrite func(Scope)
}

// New creates a Service.
func New(s *store.Store) *Service {
	return &Service{store: s}
}

// OnWrite registers a hook invoked after every successful write with
// the affected scope. Used by cache invalidation; must not block.
func (s *Service) OnWrite(fn func(Scope)) {
	s.onWrite = fn
}

func (s *Service) notify(scope Scope) {
	if s.onWrite != nil {
		s.onWrite(scope)
	}
	slog.Debug("annotation write", "video_id", scope.VideoID, "project_id", scope.ProjectID)
}

// loadGroupContext resolves and validates the entities common to all
// group-scoped operations.
func (s *Service) loadGroupContext(videoID, projectID, userID, groupID int64) (*model.User, []model.Question, error) {
	video, err := s.store.GetVideo(videoID)
	if err != nil {
		return nil, nil, err
	}
	if video == nil {
		return nil, nil, notFound("video", videoID)
	}
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, notFound("project", projectID)
	}
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, notFound("user", userID)
	}
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return nil, nil, err
	}
	if group == nil {
		return nil, nil, notFound("question group", groupID)
	}
	questions, err := s.store.ListQuestionsForGroup(groupID)
	if err != nil {
		return nil, nil, err
	}
	return user, questions, nil
}
