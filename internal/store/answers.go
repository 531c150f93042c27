package store

import (
	"database/sql"
	"time"

	"github.com/annolab/annolab/internal/model"
)

// UpsertAnswers writes a set of raw annotator answers in one
// transaction. Each answer is keyed by (video, project, question,
// user); an existing row is overwritten and its updated_at bumped,
// preserving created_at. No history of prior values is kept.
func (s *Store) UpsertAnswers(answers []model.Answer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, a := range answers {
		_, err := tx.Exec(
			`INSERT INTO answers (video_id, project_id, question_id, user_id, answer_value, confidence_score, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(video_id, project_id, question_id, user_id)
			 DO UPDATE SET answer_value = ?, confidence_score = ?, updated_at = ?`,
			a.VideoID, a.ProjectID, a.QuestionID, a.UserID, a.AnswerValue, a.ConfidenceScore, now, now,
			a.AnswerValue, a.ConfidenceScore, now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

const answerCols = `id, video_id, project_id, question_id, user_id, answer_value, confidence_score, created_at, updated_at`

func scanAnswer(scan func(dest ...any) error) (model.Answer, error) {
	var a model.Answer
	err := scan(&a.ID, &a.VideoID, &a.ProjectID, &a.QuestionID, &a.UserID,
		&a.AnswerValue, &a.ConfidenceScore, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetAnswer returns one annotator's answer for a question, or nil if absent.
func (s *Store) GetAnswer(videoID, projectID, questionID, userID int64) (*model.Answer, error) {
	row := s.db.QueryRow(
		`SELECT `+answerCols+` FROM answers
		 WHERE video_id = ? AND project_id = ? AND question_id = ? AND user_id = ?`,
		videoID, projectID, questionID, userID,
	)
	a, err := scanAnswer(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAnswerByID returns an answer by row ID, or nil if absent.
func (s *Store) GetAnswerByID(id int64) (*model.Answer, error) {
	row := s.db.QueryRow(`SELECT `+answerCols+` FROM answers WHERE id = ?`, id)
	a, err := scanAnswer(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnswersForQuestion returns every annotator's answer for one
// question on one video.
func (s *Store) ListAnswersForQuestion(videoID, projectID, questionID int64) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT `+answerCols+` FROM answers
		 WHERE video_id = ? AND project_id = ? AND question_id = ? ORDER BY id`,
		videoID, projectID, questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnswers(rows)
}

// ListAnswersForQuestionAllVideos returns every answer to a question
// across the project's videos.
func (s *Store) ListAnswersForQuestionAllVideos(projectID, questionID int64) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT `+answerCols+` FROM answers
		 WHERE project_id = ? AND question_id = ? ORDER BY video_id, id`,
		projectID, questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnswers(rows)
}

func collectAnswers(rows *sql.Rows) ([]model.Answer, error) {
	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows.Scan)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// CountUserAnswersForGroup returns how many of a group's questions the
// user has an answer row for on the given video.
func (s *Store) CountUserAnswersForGroup(videoID, projectID, groupID, userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.video_id = ? AND a.project_id = ? AND q.group_id = ? AND a.user_id = ?`,
		videoID, projectID, groupID, userID,
	).Scan(&count)
	return count, err
}

// UpsertAnswerReview records a reviewer's verdict on one raw answer.
// Last writer wins; no history is retained.
func (s *Store) UpsertAnswerReview(answerID int64, reviewerID int64, status model.ReviewStatus) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO answer_reviews (answer_id, status, reviewer_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(answer_id) DO UPDATE SET status = ?, reviewer_id = ?, updated_at = ?`,
		answerID, status, reviewerID, now,
		status, reviewerID, now,
	)
	return err
}

// GetAnswerReview returns the review for an answer, or nil if never reviewed.
func (s *Store) GetAnswerReview(answerID int64) (*model.AnswerReview, error) {
	var r model.AnswerReview
	err := s.db.QueryRow(
		`SELECT id, answer_id, status, reviewer_id, updated_at FROM answer_reviews WHERE answer_id = ?`,
		answerID,
	).Scan(&r.ID, &r.AnswerID, &r.Status, &r.ReviewerID, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
