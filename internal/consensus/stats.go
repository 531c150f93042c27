package consensus

// ComputeConsensusRate reports, for one video, the fraction of
// questions on which the selected annotators agree. A question counts
// only when at least two selected annotators answered it; it "has
// consensus" when the most common answer holds at least half the
// responses. Questions with fewer than two answers are excluded from
// both numerator and denominator.
func (g *Aggregator) ComputeConsensusRate(videoID, projectID int64, questionIDs []int64, selection []SelectedUser) (float64, error) {
	var evaluated, agreed int
	for _, qID := range questionIDs {
		answers, err := g.reader.ListAnswersForQuestion(videoID, projectID, qID)
		if err != nil {
			return 0, err
		}
		selected := filterSelected(answers, selection)
		if len(selected) < 2 {
			continue
		}
		counts := make(map[string]int)
		mostCommon := 0
		for _, wa := range selected {
			counts[wa.answer.AnswerValue]++
			if counts[wa.answer.AnswerValue] > mostCommon {
				mostCommon = counts[wa.answer.AnswerValue]
			}
		}
		evaluated++
		if float64(mostCommon)/float64(len(selected)) >= 0.5 {
			agreed++
		}
	}
	if evaluated == 0 {
		return 0, nil
	}
	return float64(agreed) / float64(evaluated), nil
}

// ComputeAccuracyRate reports, for one video, the fraction of selected
// annotators' answers matching the curated ground truth. Counts
// accumulate across questions and annotators at the video level, so a
// question with more comparisons weighs proportionally more. Questions
// without ground truth are skipped.
func (g *Aggregator) ComputeAccuracyRate(videoID, projectID int64, questionIDs []int64, selection []SelectedUser) (float64, error) {
	var compared, correct int
	for _, qID := range questionIDs {
		gt, err := g.reader.GetGroundTruth(videoID, projectID, qID)
		if err != nil {
			return 0, err
		}
		if gt == nil {
			continue
		}
		answers, err := g.reader.ListAnswersForQuestion(videoID, projectID, qID)
		if err != nil {
			return 0, err
		}
		for _, wa := range filterSelected(answers, selection) {
			compared++
			if wa.answer.AnswerValue == gt.AnswerValue {
				correct++
			}
		}
	}
	if compared == 0 {
		return 0, nil
	}
	return float64(correct) / float64(compared), nil
}

// ComputeConfidenceScore averages the recorded per-question confidence
// scores of the selected model annotators over the question set for
// one video. A video with no recorded confidence scores yields 0.0
// rather than being excluded.
func (g *Aggregator) ComputeConfidenceScore(videoID, projectID int64, questionIDs []int64, selection []SelectedUser) (float64, error) {
	var sum float64
	var n int
	for _, qID := range questionIDs {
		answers, err := g.reader.ListAnswersForQuestion(videoID, projectID, qID)
		if err != nil {
			return 0, err
		}
		for _, wa := range filterSelected(answers, selection) {
			if wa.answer.ConfidenceScore == nil {
				continue
			}
			sum += *wa.answer.ConfidenceScore
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}
