package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/annolab/annolab/internal/model"
)

// ErrLockedRow is returned by WriteGroundTruths when a non-admin write
// touches an admin-locked row. The whole transaction is rolled back.
var ErrLockedRow = errors.New("ground truth row is admin-locked")

// GroundTruthWrite is one question's intended ground-truth value inside
// a group submission.
type GroundTruthWrite struct {
	VideoID    int64
	ProjectID  int64
	QuestionID int64
	Value      string
}

// WriteGroundTruths applies a group's ground-truth submission as a
// single atomic unit. The lock check happens inside the transaction:
// if asAdmin is false and any target row is admin-locked, nothing is
// written and ErrLockedRow is returned.
//
// Creation freezes original_value and sets reviewer_id to the actor.
// A reviewer update overwrites answer_value and takes over
// reviewer_id. An admin write additionally sets modified_by_admin and
// refreshes modified_at even when the value is unchanged.
func (s *Store) WriteGroundTruths(writes []GroundTruthWrite, actorID int64, asAdmin bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, w := range writes {
		var id int64
		var modifiedByAdmin *int64
		err := tx.QueryRow(
			`SELECT id, modified_by_admin FROM ground_truths
			 WHERE video_id = ? AND project_id = ? AND question_id = ?`,
			w.VideoID, w.ProjectID, w.QuestionID,
		).Scan(&id, &modifiedByAdmin)

		switch {
		case err == sql.ErrNoRows:
			var admin *int64
			if asAdmin {
				admin = &actorID
			}
			_, err := tx.Exec(
				`INSERT INTO ground_truths (video_id, project_id, question_id, answer_value, original_value, reviewer_id, modified_by_admin, created_at, modified_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				w.VideoID, w.ProjectID, w.QuestionID, w.Value, w.Value, actorID, admin, now, now,
			)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		case asAdmin:
			_, err := tx.Exec(
				`UPDATE ground_truths SET answer_value = ?, modified_by_admin = ?, modified_at = ? WHERE id = ?`,
				w.Value, actorID, now, id,
			)
			if err != nil {
				return err
			}
		case modifiedByAdmin != nil:
			return ErrLockedRow
		default:
			_, err := tx.Exec(
				`UPDATE ground_truths SET answer_value = ?, reviewer_id = ?, modified_at = ? WHERE id = ?`,
				w.Value, actorID, now, id,
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

const groundTruthCols = `id, video_id, project_id, question_id, answer_value, original_value, reviewer_id, modified_by_admin, created_at, modified_at`

func scanGroundTruth(scan func(dest ...any) error) (model.GroundTruth, error) {
	var gt model.GroundTruth
	err := scan(&gt.ID, &gt.VideoID, &gt.ProjectID, &gt.QuestionID, &gt.AnswerValue,
		&gt.OriginalValue, &gt.ReviewerID, &gt.ModifiedByAdmin, &gt.CreatedAt, &gt.ModifiedAt)
	return gt, err
}

// GetGroundTruth returns the ground truth for a question, or nil if absent.
func (s *Store) GetGroundTruth(videoID, projectID, questionID int64) (*model.GroundTruth, error) {
	row := s.db.QueryRow(
		`SELECT `+groundTruthCols+` FROM ground_truths
		 WHERE video_id = ? AND project_id = ? AND question_id = ?`,
		videoID, projectID, questionID,
	)
	gt, err := scanGroundTruth(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gt, nil
}

// ListGroundTruthForGroup returns the ground-truth rows for a group's
// questions on one video, in question display order.
func (s *Store) ListGroundTruthForGroup(videoID, projectID, groupID int64) ([]model.GroundTruth, error) {
	rows, err := s.db.Query(
		`SELECT gt.id, gt.video_id, gt.project_id, gt.question_id, gt.answer_value, gt.original_value, gt.reviewer_id, gt.modified_by_admin, gt.created_at, gt.modified_at
		 FROM ground_truths gt
		 JOIN questions q ON q.id = gt.question_id
		 WHERE gt.video_id = ? AND gt.project_id = ? AND q.group_id = ?
		 ORDER BY q.display_order, q.id`,
		videoID, projectID, groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var truths []model.GroundTruth
	for rows.Next() {
		gt, err := scanGroundTruth(rows.Scan)
		if err != nil {
			return nil, err
		}
		truths = append(truths, gt)
	}
	return truths, rows.Err()
}

// ListLockedQuestions returns the IDs of a group's questions whose
// ground truth is admin-locked on the given video.
func (s *Store) ListLockedQuestions(videoID, projectID, groupID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT gt.question_id FROM ground_truths gt
		 JOIN questions q ON q.id = gt.question_id
		 WHERE gt.video_id = ? AND gt.project_id = ? AND q.group_id = ? AND gt.modified_by_admin IS NOT NULL
		 ORDER BY q.display_order, q.id`,
		videoID, projectID, groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountGroundTruthForGroup returns how many of a group's questions have
// a ground-truth row on the given video.
func (s *Store) CountGroundTruthForGroup(videoID, projectID, groupID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM ground_truths gt
		 JOIN questions q ON q.id = gt.question_id
		 WHERE gt.video_id = ? AND gt.project_id = ? AND q.group_id = ?`,
		videoID, projectID, groupID,
	).Scan(&count)
	return count, err
}
