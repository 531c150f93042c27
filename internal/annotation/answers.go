package annotation

import (
	"slices"

	"github.com/annolab/annolab/internal/model"
)

// AnswerValue is one submitted value, with the confidence score model
// annotators attach to each answer.
type AnswerValue struct {
	Value      string
	Confidence *float64
}

// SubmitAnswers upserts an annotator's raw answers for every question
// in a group, keyed by question text. The map must cover the whole
// group; single-type values must be one of the question's declared
// options. Resubmitting identical values is observationally a no-op
// but still bumps updated_at.
func (s *Service) SubmitAnswers(videoID, projectID, userID, groupID int64, answers map[string]AnswerValue) (Scope, error) {
	user, questions, err := s.loadGroupContext(videoID, projectID, userID, groupID)
	if err != nil {
		return Scope{}, err
	}
	if user.Role != model.UserRoleAnnotator {
		return Scope{}, validationf("user %q has role %s, only annotators submit answers", user.Username, user.Role)
	}
	if !user.Active {
		return Scope{}, validationf("user %q is inactive", user.Username)
	}

	rows, err := buildAnswerRows(videoID, projectID, user, questions, answers)
	if err != nil {
		return Scope{}, err
	}
	if err := s.store.UpsertAnswers(rows); err != nil {
		return Scope{}, err
	}

	scope := Scope{VideoID: videoID, ProjectID: projectID}
	s.notify(scope)
	return scope, nil
}

// buildAnswerRows validates coverage and option membership, and maps
// question texts to Answer rows.
func buildAnswerRows(videoID, projectID int64, user *model.User, questions []model.Question, answers map[string]AnswerValue) ([]model.Answer, error) {
	byText := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byText[q.Text] = q
	}
	for text := range answers {
		if _, ok := byText[text]; !ok {
			return nil, validationf("question %q is not part of the group", text)
		}
	}

	rows := make([]model.Answer, 0, len(questions))
	for _, q := range questions {
		av, ok := answers[q.Text]
		if !ok {
			return nil, validationf("missing answer for question %q", q.Text)
		}
		if err := validateValue(q, av.Value); err != nil {
			return nil, err
		}
		if av.Confidence != nil && !user.IsModel {
			return nil, validationf("confidence score on answer from non-model user %q", user.Username)
		}
		rows = append(rows, model.Answer{
			VideoID:         videoID,
			ProjectID:       projectID,
			QuestionID:      q.ID,
			UserID:          user.ID,
			AnswerValue:     av.Value,
			ConfidenceScore: av.Confidence,
		})
	}
	return rows, nil
}

// validateValue checks a value against a question's declared options.
// Description questions accept any text, including empty.
func validateValue(q model.Question, value string) error {
	if q.Type != model.QuestionSingle {
		return nil
	}
	// Empty string counts as "submitted", not as a choice.
	if value == "" {
		return nil
	}
	if !slices.Contains(q.Options, value) {
		return validationf("value %q is not an option of question %q", value, q.Text)
	}
	return nil
}

// GetAnswer returns one annotator's raw answer, or nil if absent.
func (s *Service) GetAnswer(videoID, projectID, questionID, userID int64) (*model.Answer, error) {
	return s.store.GetAnswer(videoID, projectID, questionID, userID)
}

// GetAnswersForQuestion returns every answer to a question across the
// project's videos.
func (s *Service) GetAnswersForQuestion(projectID, questionID int64) ([]model.Answer, error) {
	return s.store.ListAnswersForQuestionAllVideos(projectID, questionID)
}
