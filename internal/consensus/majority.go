package consensus

import (
	"fmt"

	"github.com/annolab/annolab/internal/model"
)

// ComputeMajority tallies voting weight per distinct answer value for
// one single-type question and returns the winner. Ties break by the
// question's declared option order, not submission time, so the result
// is deterministic. With no selected answers the question's default
// option applies; ok is false when there is neither.
func (g *Aggregator) ComputeMajority(videoID, projectID, questionID int64, selection []SelectedUser) (value string, ok bool, err error) {
	q, err := g.reader.GetQuestion(questionID)
	if err != nil {
		return "", false, err
	}
	if q == nil {
		return "", false, fmt.Errorf("question %d not found", questionID)
	}
	if q.Type != model.QuestionSingle {
		return "", false, fmt.Errorf("question %q is not single-type", q.Text)
	}

	answers, err := g.reader.ListAnswersForQuestion(videoID, projectID, questionID)
	if err != nil {
		return "", false, err
	}

	tally := make(map[string]float64)
	for _, wa := range filterSelected(answers, selection) {
		if wa.answer.AnswerValue == "" {
			continue
		}
		tally[wa.answer.AnswerValue] += wa.weight
	}

	// Walking the declared options keeps ties on the earlier option.
	var best string
	var bestWeight float64
	for _, opt := range q.Options {
		if w := tally[opt]; w > bestWeight {
			best, bestWeight = opt, w
		}
	}
	if best != "" {
		return best, true, nil
	}
	if q.DefaultOption != nil {
		return *q.DefaultOption, true, nil
	}
	return "", false, nil
}

// BuildMajorityAnswers computes the auto-submit answer set for a
// question group on one video: each single-type question's majority or
// default value, keyed by question text. Questions with neither are
// omitted, as are description questions, which have no vote space.
func (g *Aggregator) BuildMajorityAnswers(videoID, projectID int64, questions []model.Question, selection []SelectedUser) (map[string]string, error) {
	answers := make(map[string]string)
	for _, q := range questions {
		if q.Type != model.QuestionSingle {
			continue
		}
		value, ok, err := g.ComputeMajority(videoID, projectID, q.ID, selection)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		answers[q.Text] = value
	}
	return answers, nil
}
