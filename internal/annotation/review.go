package annotation

import "github.com/annolab/annolab/internal/model"

// ReviewAnswer records a reviewer's verdict on one raw annotator
// answer. Last writer wins; concurrent reviewers overwrite each other
// and the previous reviewer is surfaced by GetReview so the UI can
// warn about clobbering.
func (s *Service) ReviewAnswer(answerID, reviewerID int64, status model.ReviewStatus) (Scope, error) {
	switch status {
	case model.ReviewPending, model.ReviewApproved, model.ReviewRejected:
	default:
		return Scope{}, validationf("unknown review status %q", status)
	}

	answer, err := s.store.GetAnswerByID(answerID)
	if err != nil {
		return Scope{}, err
	}
	if answer == nil {
		return Scope{}, notFound("answer", answerID)
	}
	reviewer, err := s.store.GetUserByID(reviewerID)
	if err != nil {
		return Scope{}, err
	}
	if reviewer == nil {
		return Scope{}, notFound("user", reviewerID)
	}
	if reviewer.Role != model.UserRoleReviewer && reviewer.Role != model.UserRoleMetaReviewer {
		return Scope{}, validationf("user %q has role %s, only reviewers judge answers", reviewer.Username, reviewer.Role)
	}

	if err := s.store.UpsertAnswerReview(answerID, reviewerID, status); err != nil {
		return Scope{}, err
	}

	scope := Scope{VideoID: answer.VideoID, ProjectID: answer.ProjectID}
	s.notify(scope)
	return scope, nil
}

// GetReview returns the verdict for an answer. An answer never
// reviewed defaults to pending with no reviewer.
func (s *Service) GetReview(answerID int64) (model.AnswerReview, error) {
	review, err := s.store.GetAnswerReview(answerID)
	if err != nil {
		return model.AnswerReview{}, err
	}
	if review == nil {
		return model.AnswerReview{AnswerID: answerID, Status: model.ReviewPending}, nil
	}
	return *review, nil
}
