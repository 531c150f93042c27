package annotation

import (
	"errors"
	"testing"

	"github.com/annolab/annolab/internal/model"
	"github.com/annolab/annolab/internal/store"
)

type fixture struct {
	svc       *Service
	store     *store.Store
	videoID   int64
	projectID int64
	groupID   int64
	questions []model.Question
	annotator int64
	reviewer  int64
	admin     int64
}

// newFixture builds a service over an in-memory store with one video,
// one project, and one group of two single-type questions plus one
// description question.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	f := &fixture{svc: New(s), store: s}

	f.videoID, err = s.CreateVideo(model.Video{UID: "v1", URL: "https://cdn.example/v1.mp4"})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	schemaID, err := s.CreateSchema("schema")
	if err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	f.projectID, err = s.CreateProject(model.Project{Name: "proj", SchemaID: schemaID})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := s.AddVideoToProject(f.projectID, f.videoID); err != nil {
		t.Fatalf("AddVideoToProject: %v", err)
	}
	f.groupID, err = s.CreateGroup(model.QuestionGroup{SchemaID: schemaID, Title: "g"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	for i, q := range []model.Question{
		{Text: "Person visible?", Type: model.QuestionSingle, Options: []string{"yes", "no"}},
		{Text: "Indoors?", Type: model.QuestionSingle, Options: []string{"yes", "no"}},
		{Text: "Describe the action", Type: model.QuestionDescription},
	} {
		q.GroupID = f.groupID
		q.DisplayOrder = i
		if _, err := s.InsertQuestion(q); err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}
	f.questions, err = s.ListQuestionsForGroup(f.groupID)
	if err != nil {
		t.Fatalf("ListQuestionsForGroup: %v", err)
	}

	f.annotator = f.createUser(t, "anno", model.UserRoleAnnotator, false)
	f.reviewer = f.createUser(t, "rev", model.UserRoleReviewer, false)
	f.admin = f.createUser(t, "meta", model.UserRoleMetaReviewer, false)
	return f
}

func (f *fixture) createUser(t *testing.T, name string, role model.UserRole, isModel bool) int64 {
	t.Helper()
	id, err := f.store.CreateUser(model.User{
		Username: name, DisplayName: name, PasswordHash: "x",
		Role: role, IsModel: isModel, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser %q: %v", name, err)
	}
	return id
}

func fullAnswers(value string) map[string]AnswerValue {
	return map[string]AnswerValue{
		"Person visible?":     {Value: value},
		"Indoors?":            {Value: value},
		"Describe the action": {Value: "a person walks by"},
	}
}

func TestSubmitAnswers(t *testing.T) {
	f := newFixture(t)

	var notified []Scope
	f.svc.OnWrite(func(s Scope) { notified = append(notified, s) })

	scope, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, fullAnswers("yes"))
	if err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}
	if scope.VideoID != f.videoID || scope.ProjectID != f.projectID {
		t.Errorf("unexpected scope %+v", scope)
	}
	if len(notified) != 1 || notified[0] != scope {
		t.Errorf("expected one write notification, got %v", notified)
	}

	a, err := f.svc.GetAnswer(f.videoID, f.projectID, f.questions[0].ID, f.annotator)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if a == nil || a.AnswerValue != "yes" {
		t.Fatalf("expected stored 'yes', got %+v", a)
	}
}

func TestSubmitAnswersValidation(t *testing.T) {
	f := newFixture(t)

	assertValidation := func(t *testing.T, err error) {
		t.Helper()
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}

	t.Run("partial coverage rejected", func(t *testing.T) {
		answers := fullAnswers("yes")
		delete(answers, "Indoors?")
		_, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, answers)
		assertValidation(t, err)
	})

	t.Run("unknown question rejected", func(t *testing.T) {
		answers := fullAnswers("yes")
		answers["Is it raining?"] = AnswerValue{Value: "no"}
		_, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, answers)
		assertValidation(t, err)
	})

	t.Run("value outside options rejected", func(t *testing.T) {
		answers := fullAnswers("yes")
		answers["Indoors?"] = AnswerValue{Value: "maybe"}
		_, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, answers)
		assertValidation(t, err)
	})

	t.Run("empty value accepted", func(t *testing.T) {
		_, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, fullAnswers(""))
		if err != nil {
			t.Fatalf("SubmitAnswers with empty values: %v", err)
		}
	})

	t.Run("reviewer cannot submit answers", func(t *testing.T) {
		_, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.reviewer, f.groupID, fullAnswers("yes"))
		assertValidation(t, err)
	})

	t.Run("inactive user rejected", func(t *testing.T) {
		inactive := f.createUser(t, "gone", model.UserRoleAnnotator, false)
		if err := f.store.ToggleUserActive(inactive); err != nil {
			t.Fatalf("ToggleUserActive: %v", err)
		}
		_, err := f.svc.SubmitAnswers(f.videoID, f.projectID, inactive, f.groupID, fullAnswers("yes"))
		assertValidation(t, err)
	})

	t.Run("confidence from human rejected", func(t *testing.T) {
		conf := 0.8
		answers := fullAnswers("yes")
		answers["Indoors?"] = AnswerValue{Value: "yes", Confidence: &conf}
		_, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, answers)
		assertValidation(t, err)
	})

	t.Run("missing video not found", func(t *testing.T) {
		_, err := f.svc.SubmitAnswers(9999, f.projectID, f.annotator, f.groupID, fullAnswers("yes"))
		var nferr *NotFoundError
		if !errors.As(err, &nferr) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if nferr.Kind != "video" {
			t.Errorf("expected kind video, got %q", nferr.Kind)
		}
	})
}

func TestSubmitAnswersModelConfidence(t *testing.T) {
	f := newFixture(t)
	modelUser := f.createUser(t, "gpt", model.UserRoleAnnotator, true)

	conf := 0.73
	answers := fullAnswers("no")
	answers["Indoors?"] = AnswerValue{Value: "no", Confidence: &conf}
	if _, err := f.svc.SubmitAnswers(f.videoID, f.projectID, modelUser, f.groupID, answers); err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}

	a, err := f.svc.GetAnswer(f.videoID, f.projectID, f.questions[1].ID, modelUser)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if a.ConfidenceScore == nil || *a.ConfidenceScore != 0.73 {
		t.Errorf("expected confidence 0.73, got %v", a.ConfidenceScore)
	}
}

func TestSubmitAnswersResubmission(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, fullAnswers("yes")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, fullAnswers("no")); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	// Still one row per question, and the values are overwritten.
	for _, q := range f.questions[:2] {
		answers, err := f.store.ListAnswersForQuestion(f.videoID, f.projectID, q.ID)
		if err != nil {
			t.Fatalf("ListAnswersForQuestion: %v", err)
		}
		if len(answers) != 1 {
			t.Fatalf("expected 1 row for %q, got %d", q.Text, len(answers))
		}
		if answers[0].AnswerValue != "no" {
			t.Errorf("expected overwritten 'no' for %q, got %q", q.Text, answers[0].AnswerValue)
		}
	}
}

func TestSubmitGroundTruth(t *testing.T) {
	f := newFixture(t)

	// Subset submission is allowed for ground truth.
	scope, err := f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID,
		map[string]string{"Person visible?": "yes"})
	if err != nil {
		t.Fatalf("SubmitGroundTruth: %v", err)
	}
	if scope.VideoID != f.videoID {
		t.Errorf("unexpected scope %+v", scope)
	}

	gt, err := f.svc.GetGroundTruth(f.videoID, f.projectID, f.questions[0].ID)
	if err != nil {
		t.Fatalf("GetGroundTruth: %v", err)
	}
	if gt == nil || gt.AnswerValue != "yes" || gt.ReviewerID != f.reviewer {
		t.Fatalf("expected reviewer ground truth, got %+v", gt)
	}

	// Annotators cannot curate.
	_, err = f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.annotator, f.groupID,
		map[string]string{"Person visible?": "yes"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for annotator, got %v", err)
	}

	// Empty submission is rejected.
	_, err = f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID, map[string]string{})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty submission, got %v", err)
	}

	// Unknown question text is rejected.
	_, err = f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID,
		map[string]string{"Is it raining?": "no"})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown question, got %v", err)
	}
}

func TestAdminLock(t *testing.T) {
	f := newFixture(t)

	// Reviewer curates two questions; admin overrides one of them.
	_, err := f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID,
		map[string]string{"Person visible?": "yes", "Indoors?": "no"})
	if err != nil {
		t.Fatalf("SubmitGroundTruth: %v", err)
	}
	_, err = f.svc.OverrideGroundTruth(f.videoID, f.projectID, f.admin, f.groupID,
		map[string]string{"Person visible?": "no"})
	if err != nil {
		t.Fatalf("OverrideGroundTruth: %v", err)
	}

	locked, err := f.svc.IsQuestionLocked(f.videoID, f.projectID, f.questions[0].ID)
	if err != nil {
		t.Fatalf("IsQuestionLocked: %v", err)
	}
	if !locked {
		t.Fatal("expected question locked after override")
	}
	groupLocked, err := f.svc.IsGroupLocked(f.videoID, f.projectID, f.groupID)
	if err != nil {
		t.Fatalf("IsGroupLocked: %v", err)
	}
	if !groupLocked {
		t.Error("expected group reported locked")
	}

	// A reviewer batch touching the locked question is vetoed whole:
	// the Indoors? value must keep its old value.
	_, err = f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID,
		map[string]string{"Person visible?": "yes", "Indoors?": "yes"})
	var lerr *LockedError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if len(lerr.QuestionIDs) != 1 || lerr.QuestionIDs[0] != f.questions[0].ID {
		t.Errorf("expected locked question %d, got %v", f.questions[0].ID, lerr.QuestionIDs)
	}
	gt, _ := f.svc.GetGroundTruth(f.videoID, f.projectID, f.questions[1].ID)
	if gt.AnswerValue != "no" {
		t.Errorf("vetoed batch leaked a write: %q", gt.AnswerValue)
	}

	// The editable subset still goes through.
	editable, err := f.svc.EditableQuestions(f.videoID, f.projectID, f.groupID)
	if err != nil {
		t.Fatalf("EditableQuestions: %v", err)
	}
	if len(editable) != 2 {
		t.Fatalf("expected 2 editable questions, got %d", len(editable))
	}
	for _, q := range editable {
		if q.ID == f.questions[0].ID {
			t.Fatal("locked question listed as editable")
		}
	}
	_, err = f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID,
		map[string]string{"Indoors?": "yes"})
	if err != nil {
		t.Fatalf("SubmitGroundTruth editable subset: %v", err)
	}

	// The lock is one-way: a second admin override keeps it set, and
	// the reviewer still cannot touch the question.
	_, err = f.svc.OverrideGroundTruth(f.videoID, f.projectID, f.admin, f.groupID,
		map[string]string{"Person visible?": "yes"})
	if err != nil {
		t.Fatalf("OverrideGroundTruth again: %v", err)
	}
	_, err = f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID,
		map[string]string{"Person visible?": "no"})
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LockedError after re-override, got %v", err)
	}

	// Only meta-reviewers may override.
	_, err = f.svc.OverrideGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID,
		map[string]string{"Indoors?": "yes"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for reviewer override, got %v", err)
	}
}

func TestOverrideFreezesOriginalOnCreate(t *testing.T) {
	f := newFixture(t)

	// An admin override on a never-curated question creates the row
	// already locked, with original_value set to the admin's value.
	_, err := f.svc.OverrideGroundTruth(f.videoID, f.projectID, f.admin, f.groupID,
		map[string]string{"Person visible?": "yes"})
	if err != nil {
		t.Fatalf("OverrideGroundTruth: %v", err)
	}
	gt, err := f.svc.GetGroundTruth(f.videoID, f.projectID, f.questions[0].ID)
	if err != nil {
		t.Fatalf("GetGroundTruth: %v", err)
	}
	if !gt.Locked() || gt.OriginalValue != "yes" {
		t.Errorf("expected locked row with original 'yes', got %+v", gt)
	}
}

func TestGroupProgress(t *testing.T) {
	f := newFixture(t)

	// Annotator starts at zero.
	p, err := f.svc.GroupProgress(f.videoID, f.projectID, f.groupID, f.annotator, model.UserRoleAnnotator)
	if err != nil {
		t.Fatalf("GroupProgress: %v", err)
	}
	if p.Completed != 0 || p.Total != 3 || p.Complete {
		t.Errorf("expected 0/3 incomplete, got %+v", p)
	}

	// A full submission with one empty value still completes the group.
	answers := fullAnswers("yes")
	answers["Indoors?"] = AnswerValue{Value: ""}
	if _, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, answers); err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}
	p, err = f.svc.GroupProgress(f.videoID, f.projectID, f.groupID, f.annotator, model.UserRoleAnnotator)
	if err != nil {
		t.Fatalf("GroupProgress: %v", err)
	}
	if !p.Complete || p.Fraction != 1.0 {
		t.Errorf("expected complete group, got %+v", p)
	}

	// Reviewer completion counts ground-truth rows, regardless of which
	// reviewer wrote them.
	p, err = f.svc.GroupProgress(f.videoID, f.projectID, f.groupID, f.reviewer, model.UserRoleReviewer)
	if err != nil {
		t.Fatalf("GroupProgress reviewer: %v", err)
	}
	if p.Completed != 0 {
		t.Errorf("expected 0 reviewed, got %d", p.Completed)
	}

	_, err = f.svc.SubmitGroundTruth(f.videoID, f.projectID, f.reviewer, f.groupID,
		map[string]string{"Person visible?": "yes", "Indoors?": "no"})
	if err != nil {
		t.Fatalf("SubmitGroundTruth: %v", err)
	}
	// The admin locks the third question; the lock counts as reviewer
	// completion even though no reviewer wrote it.
	_, err = f.svc.OverrideGroundTruth(f.videoID, f.projectID, f.admin, f.groupID,
		map[string]string{"Describe the action": "a person walks by"})
	if err != nil {
		t.Fatalf("OverrideGroundTruth: %v", err)
	}
	p, err = f.svc.GroupProgress(f.videoID, f.projectID, f.groupID, f.reviewer, model.UserRoleReviewer)
	if err != nil {
		t.Fatalf("GroupProgress reviewer: %v", err)
	}
	if !p.Complete || p.Completed != 3 {
		t.Errorf("expected reviewer complete 3/3, got %+v", p)
	}

	// Unknown role is rejected.
	_, err = f.svc.GroupProgress(f.videoID, f.projectID, f.groupID, f.annotator, model.UserRole("ghost"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown role, got %v", err)
	}
}

func TestReviewAnswer(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.SubmitAnswers(f.videoID, f.projectID, f.annotator, f.groupID, fullAnswers("yes")); err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}
	answer, _ := f.store.GetAnswer(f.videoID, f.projectID, f.questions[2].ID, f.annotator)

	// Never-reviewed answer reads back as pending.
	review, err := f.svc.GetReview(answer.ID)
	if err != nil {
		t.Fatalf("GetReview: %v", err)
	}
	if review.Status != model.ReviewPending || review.ReviewerID != nil {
		t.Errorf("expected default pending review, got %+v", review)
	}

	scope, err := f.svc.ReviewAnswer(answer.ID, f.reviewer, model.ReviewApproved)
	if err != nil {
		t.Fatalf("ReviewAnswer: %v", err)
	}
	if scope.VideoID != f.videoID || scope.ProjectID != f.projectID {
		t.Errorf("unexpected scope %+v", scope)
	}
	review, _ = f.svc.GetReview(answer.ID)
	if review.Status != model.ReviewApproved || *review.ReviewerID != f.reviewer {
		t.Errorf("expected approved by reviewer, got %+v", review)
	}

	// Last writer wins.
	if _, err := f.svc.ReviewAnswer(answer.ID, f.admin, model.ReviewRejected); err != nil {
		t.Fatalf("ReviewAnswer overwrite: %v", err)
	}
	review, _ = f.svc.GetReview(answer.ID)
	if review.Status != model.ReviewRejected || *review.ReviewerID != f.admin {
		t.Errorf("expected rejected by admin, got %+v", review)
	}

	var verr *ValidationError
	if _, err := f.svc.ReviewAnswer(answer.ID, f.reviewer, model.ReviewStatus("meh")); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for bad status, got %v", err)
	}
	if _, err := f.svc.ReviewAnswer(answer.ID, f.annotator, model.ReviewApproved); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for annotator reviewer, got %v", err)
	}
	var nferr *NotFoundError
	if _, err := f.svc.ReviewAnswer(9999, f.reviewer, model.ReviewApproved); !errors.As(err, &nferr) {
		t.Errorf("expected NotFoundError for missing answer, got %v", err)
	}
}
