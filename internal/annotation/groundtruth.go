package annotation

import (
	"errors"

	"github.com/annolab/annolab/internal/model"
	"github.com/annolab/annolab/internal/store"
)

// SubmitGroundTruth writes a reviewer's curated answers for a subset
// of a group's questions, keyed by question text. The write is atomic:
// if any targeted question is admin-locked, nothing is written and a
// LockedError is returned. Re-submission overwrites the value and
// transfers reviewer ownership to the acting reviewer.
func (s *Service) SubmitGroundTruth(videoID, projectID, reviewerID, groupID int64, answers map[string]string) (Scope, error) {
	user, questions, err := s.loadGroupContext(videoID, projectID, reviewerID, groupID)
	if err != nil {
		return Scope{}, err
	}
	if user.Role != model.UserRoleReviewer && user.Role != model.UserRoleMetaReviewer {
		return Scope{}, validationf("user %q has role %s, only reviewers submit ground truth", user.Username, user.Role)
	}

	writes, err := buildGroundTruthWrites(videoID, projectID, questions, answers)
	if err != nil {
		return Scope{}, err
	}

	if err := s.store.WriteGroundTruths(writes, reviewerID, false); err != nil {
		if errors.Is(err, store.ErrLockedRow) {
			locked, lerr := s.store.ListLockedQuestions(videoID, projectID, groupID)
			if lerr != nil {
				locked = nil
			}
			return Scope{}, &LockedError{VideoID: videoID, ProjectID: projectID, QuestionIDs: locked}
		}
		return Scope{}, err
	}

	scope := Scope{VideoID: videoID, ProjectID: projectID}
	s.notify(scope)
	return scope, nil
}

// OverrideGroundTruth writes an admin's answers unconditionally,
// setting the one-way modified_by_admin lock on every targeted
// question and refreshing modified_at even for identical values.
func (s *Service) OverrideGroundTruth(videoID, projectID, adminID, groupID int64, answers map[string]string) (Scope, error) {
	user, questions, err := s.loadGroupContext(videoID, projectID, adminID, groupID)
	if err != nil {
		return Scope{}, err
	}
	if user.Role != model.UserRoleMetaReviewer {
		return Scope{}, validationf("user %q has role %s, only meta-reviewers override ground truth", user.Username, user.Role)
	}

	writes, err := buildGroundTruthWrites(videoID, projectID, questions, answers)
	if err != nil {
		return Scope{}, err
	}
	if err := s.store.WriteGroundTruths(writes, adminID, true); err != nil {
		return Scope{}, err
	}

	scope := Scope{VideoID: videoID, ProjectID: projectID}
	s.notify(scope)
	return scope, nil
}

// buildGroundTruthWrites maps question texts to write intents. Unlike
// answer submission, a subset of the group is allowed: callers submit
// only the editable questions of a partially locked group.
func buildGroundTruthWrites(videoID, projectID int64, questions []model.Question, answers map[string]string) ([]store.GroundTruthWrite, error) {
	if len(answers) == 0 {
		return nil, validationf("ground truth submission is empty")
	}
	byText := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byText[q.Text] = q
	}

	writes := make([]store.GroundTruthWrite, 0, len(answers))
	// Iterate in declared question order for deterministic writes.
	for _, q := range questions {
		value, ok := answers[q.Text]
		if !ok {
			continue
		}
		if err := validateValue(q, value); err != nil {
			return nil, err
		}
		writes = append(writes, store.GroundTruthWrite{
			VideoID:    videoID,
			ProjectID:  projectID,
			QuestionID: q.ID,
			Value:      value,
		})
	}
	if len(writes) != len(answers) {
		for text := range answers {
			if _, ok := byText[text]; !ok {
				return nil, validationf("question %q is not part of the group", text)
			}
		}
	}
	return writes, nil
}

// GetGroundTruth returns the authoritative answer for a question, or
// nil if none has been curated. Read-only.
func (s *Service) GetGroundTruth(videoID, projectID, questionID int64) (*model.GroundTruth, error) {
	return s.store.GetGroundTruth(videoID, projectID, questionID)
}

// GetGroundTruthForGroup returns the curated rows for a group's
// questions on one video, in declared question order.
func (s *Service) GetGroundTruthForGroup(videoID, projectID, groupID int64) ([]model.GroundTruth, error) {
	return s.store.ListGroundTruthForGroup(videoID, projectID, groupID)
}

// IsQuestionLocked reports whether a question's ground truth carries
// the admin lock.
func (s *Service) IsQuestionLocked(videoID, projectID, questionID int64) (bool, error) {
	gt, err := s.store.GetGroundTruth(videoID, projectID, questionID)
	if err != nil {
		return false, err
	}
	return gt != nil && gt.Locked(), nil
}

// IsGroupLocked reports whether any question in the group is locked.
// This is a group-wide veto: callers wanting to edit the rest must
// submit only the editable subset.
func (s *Service) IsGroupLocked(videoID, projectID, groupID int64) (bool, error) {
	locked, err := s.store.ListLockedQuestions(videoID, projectID, groupID)
	if err != nil {
		return false, err
	}
	return len(locked) > 0, nil
}

// EditableQuestions returns the group's questions that are not
// admin-locked, in declared order.
func (s *Service) EditableQuestions(videoID, projectID, groupID int64) ([]model.Question, error) {
	questions, err := s.store.ListQuestionsForGroup(groupID)
	if err != nil {
		return nil, err
	}
	lockedIDs, err := s.store.ListLockedQuestions(videoID, projectID, groupID)
	if err != nil {
		return nil, err
	}
	if len(lockedIDs) == 0 {
		return questions, nil
	}
	locked := make(map[int64]bool, len(lockedIDs))
	for _, id := range lockedIDs {
		locked[id] = true
	}
	editable := questions[:0:0]
	for _, q := range questions {
		if !locked[q.ID] {
			editable = append(editable, q)
		}
	}
	return editable, nil
}
