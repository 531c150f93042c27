package annotation

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input, such as an
// answer value outside a question's declared option set or a group
// submission that does not cover every question.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced video, project, group, question,
// user, or answer that does not exist.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func notFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// LockedError reports a ground-truth write rejected because at least
// one target question is admin-locked. The whole group submission is
// rejected; nothing is written.
type LockedError struct {
	VideoID     int64
	ProjectID   int64
	QuestionIDs []int64
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("ground truth locked by admin (video %d, project %d, questions %v)",
		e.VideoID, e.ProjectID, e.QuestionIDs)
}

// ErrConflict is reserved for optimistic-concurrency support. Nothing
// raises it today: concurrent reviewer writes to the same question are
// last-writer-wins.
var ErrConflict = errors.New("conflicting concurrent write")
