package model

import "time"

// ProjectExport is the top-level JSON structure for ground-truth export.
type ProjectExport struct {
	ProjectID   int64         `json:"project_id"`
	ProjectName string        `json:"project_name"`
	SchemaName  string        `json:"schema_name"`
	ExportedAt  time.Time     `json:"exported_at"`
	NumVideos   int           `json:"num_videos"`
	Videos      []VideoResult `json:"videos"`
}

// VideoResult holds one video's curated annotations for export.
type VideoResult struct {
	VideoUID      string           `json:"video_uid"`
	VideoURL      string           `json:"video_url"`
	ConsensusRate *float64         `json:"consensus_rate,omitempty"`
	AccuracyRate  *float64         `json:"accuracy_rate,omitempty"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question export data: the ground truth plus
// every raw annotator answer with its review verdict.
type QuestionResult struct {
	Text            string         `json:"text"`
	Type            QuestionType   `json:"type"`
	GroundTruth     *string        `json:"ground_truth,omitempty"`
	OriginalValue   *string        `json:"original_value,omitempty"`
	ModifiedByAdmin *int64         `json:"modified_by_admin,omitempty"`
	Answers         []AnswerResult `json:"answers"`
}

// AnswerResult is a single raw answer in an export.
type AnswerResult struct {
	Username     string       `json:"username"`
	IsModel      bool         `json:"is_model"`
	Value        string       `json:"value"`
	Confidence   *float64     `json:"confidence,omitempty"`
	ReviewStatus ReviewStatus `json:"review_status"`
	SubmittedAt  time.Time    `json:"submitted_at"`
}
