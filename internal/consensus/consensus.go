// Package consensus turns sets of raw annotator answers into proposed
// auto-submit values and descriptive statistics. It never writes
// entity state; auto-submission goes through the annotation service.
package consensus

import "github.com/annolab/annolab/internal/model"

// Reader is the read-only slice of the store the aggregator consumes.
type Reader interface {
	GetQuestion(id int64) (*model.Question, error)
	ListAnswersForQuestion(videoID, projectID, questionID int64) ([]model.Answer, error)
	GetGroundTruth(videoID, projectID, questionID int64) (*model.GroundTruth, error)
}

// SelectedUser names one annotator included in an aggregation, with an
// optional explicit weight. When Weight is nil, the answer's stored
// confidence score applies (model users), else 1.0.
type SelectedUser struct {
	UserID int64
	Weight *float64
}

// Aggregator computes majority, consensus, accuracy, and confidence
// figures over selected annotators. Selection is always passed in per
// call; the aggregator holds no session state.
type Aggregator struct {
	reader Reader
}

// New creates an Aggregator over the given reader.
func New(r Reader) *Aggregator {
	return &Aggregator{reader: r}
}

// filterSelected returns the answers belonging to the selection, each
// paired with its resolved weight. A nil or empty selection means
// every available answer at weight confidence-or-1.
func filterSelected(answers []model.Answer, selection []SelectedUser) []weightedAnswer {
	if len(selection) == 0 {
		out := make([]weightedAnswer, 0, len(answers))
		for _, a := range answers {
			out = append(out, weightedAnswer{answer: a, weight: answerWeight(a, nil)})
		}
		return out
	}
	byUser := make(map[int64]*float64, len(selection))
	for _, sel := range selection {
		byUser[sel.UserID] = sel.Weight
	}
	var out []weightedAnswer
	for _, a := range answers {
		w, ok := byUser[a.UserID]
		if !ok {
			continue
		}
		out = append(out, weightedAnswer{answer: a, weight: answerWeight(a, w)})
	}
	return out
}

type weightedAnswer struct {
	answer model.Answer
	weight float64
}

// answerWeight resolves one answer's voting weight: explicit selection
// weight first, then the answer's own confidence score, then 1.0.
func answerWeight(a model.Answer, explicit *float64) float64 {
	if explicit != nil {
		return *explicit
	}
	if a.ConfidenceScore != nil {
		return *a.ConfidenceScore
	}
	return 1.0
}
