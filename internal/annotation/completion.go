package annotation

import "github.com/annolab/annolab/internal/model"

// IsGroupComplete reports whether the user's work on a question group
// is done for the given video.
//
// Annotators are complete once they have an answer row for every
// question in the group; an empty value still counts as submitted.
// Reviewers and meta-reviewers are complete once every question
// either has a ground-truth row or is admin-locked; a lock removes
// the question from the reviewer's outstanding work even though the
// reviewer did not write the value.
func (s *Service) IsGroupComplete(videoID, projectID, groupID, userID int64, role model.UserRole) (bool, error) {
	p, err := s.GroupProgress(videoID, projectID, groupID, userID, role)
	if err != nil {
		return false, err
	}
	return p.Complete, nil
}

// GroupProgress computes the completed-question fraction for one group
// and role, reported to dashboards. Pure read, never mutates.
func (s *Service) GroupProgress(videoID, projectID, groupID, userID int64, role model.UserRole) (model.GroupProgress, error) {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return model.GroupProgress{}, err
	}
	if group == nil {
		return model.GroupProgress{}, notFound("question group", groupID)
	}
	questions, err := s.store.ListQuestionsForGroup(groupID)
	if err != nil {
		return model.GroupProgress{}, err
	}
	total := len(questions)

	var completed int
	switch role {
	case model.UserRoleAnnotator:
		completed, err = s.store.CountUserAnswersForGroup(videoID, projectID, groupID, userID)
	case model.UserRoleReviewer, model.UserRoleMetaReviewer:
		// An admin-locked question always has a ground-truth row, so
		// "locked or has ground truth" reduces to row existence.
		completed, err = s.store.CountGroundTruthForGroup(videoID, projectID, groupID)
	default:
		return model.GroupProgress{}, validationf("unknown role %q", role)
	}
	if err != nil {
		return model.GroupProgress{}, err
	}

	p := model.GroupProgress{
		GroupID:   groupID,
		Completed: completed,
		Total:     total,
		Complete:  total > 0 && completed >= total,
	}
	if total > 0 {
		p.Fraction = float64(completed) / float64(total)
	}
	return p, nil
}
