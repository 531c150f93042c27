package store

import (
	"testing"

	"github.com/annolab/annolab/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testLab holds the IDs of a minimal annotation setup: one project over
// one schema with one group of questions, and one video linked in.
type testLab struct {
	VideoID   int64
	SchemaID  int64
	ProjectID int64
	GroupID   int64
	Questions []int64
}

func seedLab(t *testing.T, s *Store, questionTexts ...string) testLab {
	t.Helper()

	videoID, err := s.CreateVideo(model.Video{UID: "vid-1", URL: "https://cdn.example/vid-1.mp4"})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	schemaID, err := s.CreateSchema("test schema")
	if err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	projectID, err := s.CreateProject(model.Project{Name: "test project", SchemaID: schemaID})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := s.AddVideoToProject(projectID, videoID); err != nil {
		t.Fatalf("AddVideoToProject: %v", err)
	}
	groupID, err := s.CreateGroup(model.QuestionGroup{SchemaID: schemaID, Title: "group"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	lab := testLab{VideoID: videoID, SchemaID: schemaID, ProjectID: projectID, GroupID: groupID}
	for i, text := range questionTexts {
		qID, err := s.InsertQuestion(model.Question{
			GroupID:      groupID,
			Text:         text,
			Type:         model.QuestionSingle,
			Options:      []string{"yes", "no"},
			DisplayOrder: i,
		})
		if err != nil {
			t.Fatalf("InsertQuestion %q: %v", text, err)
		}
		lab.Questions = append(lab.Questions, qID)
	}
	return lab
}

func createTestUser(t *testing.T, s *Store, username string, role model.UserRole) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:     username,
		DisplayName:  username,
		PasswordHash: "x",
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser %q: %v", username, err)
	}
	return id
}

func TestVideoCRUD(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateVideo(model.Video{UID: "abc", URL: "https://cdn.example/abc.mp4"})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}

	v, err := s.GetVideo(id)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if v == nil || v.UID != "abc" {
		t.Fatalf("expected video with uid abc, got %+v", v)
	}

	byUID, err := s.GetVideoByUID("abc")
	if err != nil {
		t.Fatalf("GetVideoByUID: %v", err)
	}
	if byUID == nil || byUID.ID != id {
		t.Errorf("expected video %d by uid, got %+v", id, byUID)
	}

	// Missing video is nil, not an error.
	missing, err := s.GetVideo(9999)
	if err != nil {
		t.Fatalf("GetVideo missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing video, got %+v", missing)
	}

	// UID is unique.
	if _, err := s.CreateVideo(model.Video{UID: "abc", URL: "https://elsewhere"}); err == nil {
		t.Error("expected error on duplicate uid")
	}
}

func TestProjectVideos(t *testing.T) {
	s := newTestStore(t)
	lab := seedLab(t, s, "Q1")

	// Adding the same video twice is a no-op.
	if err := s.AddVideoToProject(lab.ProjectID, lab.VideoID); err != nil {
		t.Fatalf("AddVideoToProject again: %v", err)
	}
	videos, err := s.ListProjectVideos(lab.ProjectID)
	if err != nil {
		t.Fatalf("ListProjectVideos: %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("expected 1 video, got %d", len(videos))
	}

	// Archived videos drop out of the working set.
	archivedID, err := s.CreateVideo(model.Video{UID: "old", URL: "https://cdn.example/old.mp4", Archived: true})
	if err != nil {
		t.Fatalf("CreateVideo archived: %v", err)
	}
	if err := s.AddVideoToProject(lab.ProjectID, archivedID); err != nil {
		t.Fatalf("AddVideoToProject archived: %v", err)
	}
	videos, err = s.ListProjectVideos(lab.ProjectID)
	if err != nil {
		t.Fatalf("ListProjectVideos: %v", err)
	}
	if len(videos) != 1 {
		t.Errorf("expected archived video excluded, got %d videos", len(videos))
	}
}

func TestQuestions(t *testing.T) {
	s := newTestStore(t)
	lab := seedLab(t, s)

	def := "unclear"
	id, err := s.InsertQuestion(model.Question{
		GroupID:       lab.GroupID,
		Text:          "Is the actor visible?",
		Type:          model.QuestionSingle,
		Options:       []string{"yes", "no", "unclear"},
		DefaultOption: &def,
		DisplayOrder:  1,
	})
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}

	q, err := s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if len(q.Options) != 3 || q.Options[2] != "unclear" {
		t.Errorf("expected options round-tripped, got %v", q.Options)
	}
	if q.DefaultOption == nil || *q.DefaultOption != "unclear" {
		t.Errorf("expected default option 'unclear', got %v", q.DefaultOption)
	}

	byText, err := s.GetQuestionByText(lab.GroupID, "Is the actor visible?")
	if err != nil {
		t.Fatalf("GetQuestionByText: %v", err)
	}
	if byText == nil || byText.ID != id {
		t.Errorf("expected question %d by text, got %+v", id, byText)
	}

	// Later display_order but inserted first should still sort last.
	if _, err := s.InsertQuestion(model.Question{
		GroupID: lab.GroupID, Text: "First", Type: model.QuestionDescription, DisplayOrder: 0,
	}); err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	questions, err := s.ListQuestionsForGroup(lab.GroupID)
	if err != nil {
		t.Fatalf("ListQuestionsForGroup: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].Text != "First" || questions[1].ID != id {
		t.Errorf("questions not in display order: %q, %q", questions[0].Text, questions[1].Text)
	}
}

func TestAnswerUpsert(t *testing.T) {
	s := newTestStore(t)
	lab := seedLab(t, s, "Q1")
	userID := createTestUser(t, s, "alice", model.UserRoleAnnotator)

	conf := 0.9
	err := s.UpsertAnswers([]model.Answer{{
		VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0],
		UserID: userID, AnswerValue: "yes", ConfidenceScore: &conf,
	}})
	if err != nil {
		t.Fatalf("UpsertAnswers: %v", err)
	}

	first, err := s.GetAnswer(lab.VideoID, lab.ProjectID, lab.Questions[0], userID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if first == nil || first.AnswerValue != "yes" {
		t.Fatalf("expected answer 'yes', got %+v", first)
	}
	if first.ConfidenceScore == nil || *first.ConfidenceScore != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", first.ConfidenceScore)
	}

	// Resubmission overwrites in place: same row, created_at preserved,
	// updated_at not before the original.
	err = s.UpsertAnswers([]model.Answer{{
		VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0],
		UserID: userID, AnswerValue: "no",
	}})
	if err != nil {
		t.Fatalf("UpsertAnswers update: %v", err)
	}
	second, err := s.GetAnswer(lab.VideoID, lab.ProjectID, lab.Questions[0], userID)
	if err != nil {
		t.Fatalf("GetAnswer after update: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same row, got %d then %d", first.ID, second.ID)
	}
	if second.AnswerValue != "no" {
		t.Errorf("expected answer 'no', got %q", second.AnswerValue)
	}
	if second.ConfidenceScore != nil {
		t.Errorf("expected confidence cleared, got %v", second.ConfidenceScore)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("updated_at went backwards: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}

	answers, err := s.ListAnswersForQuestion(lab.VideoID, lab.ProjectID, lab.Questions[0])
	if err != nil {
		t.Fatalf("ListAnswersForQuestion: %v", err)
	}
	if len(answers) != 1 {
		t.Errorf("expected 1 answer row after resubmission, got %d", len(answers))
	}
}

func TestCountUserAnswersForGroup(t *testing.T) {
	s := newTestStore(t)
	lab := seedLab(t, s, "Q1", "Q2", "Q3")
	userID := createTestUser(t, s, "alice", model.UserRoleAnnotator)
	otherID := createTestUser(t, s, "bob", model.UserRoleAnnotator)

	err := s.UpsertAnswers([]model.Answer{
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], UserID: userID, AnswerValue: "yes"},
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[1], UserID: userID, AnswerValue: ""},
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], UserID: otherID, AnswerValue: "no"},
	})
	if err != nil {
		t.Fatalf("UpsertAnswers: %v", err)
	}

	count, err := s.CountUserAnswersForGroup(lab.VideoID, lab.ProjectID, lab.GroupID, userID)
	if err != nil {
		t.Fatalf("CountUserAnswersForGroup: %v", err)
	}
	// Empty-valued rows count: an empty submission is still a submission.
	if count != 2 {
		t.Errorf("expected 2 answers for alice, got %d", count)
	}
	count, err = s.CountUserAnswersForGroup(lab.VideoID, lab.ProjectID, lab.GroupID, otherID)
	if err != nil {
		t.Fatalf("CountUserAnswersForGroup: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 answer for bob, got %d", count)
	}
}

func TestWriteGroundTruths(t *testing.T) {
	s := newTestStore(t)
	lab := seedLab(t, s, "Q1", "Q2")
	reviewerID := createTestUser(t, s, "rev", model.UserRoleReviewer)
	adminID := createTestUser(t, s, "admin", model.UserRoleMetaReviewer)

	// Creation freezes original_value.
	err := s.WriteGroundTruths([]GroundTruthWrite{
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], Value: "yes"},
	}, reviewerID, false)
	if err != nil {
		t.Fatalf("WriteGroundTruths create: %v", err)
	}
	gt, err := s.GetGroundTruth(lab.VideoID, lab.ProjectID, lab.Questions[0])
	if err != nil {
		t.Fatalf("GetGroundTruth: %v", err)
	}
	if gt == nil || gt.AnswerValue != "yes" || gt.OriginalValue != "yes" {
		t.Fatalf("expected value and original 'yes', got %+v", gt)
	}
	if gt.ReviewerID != reviewerID {
		t.Errorf("expected reviewer %d, got %d", reviewerID, gt.ReviewerID)
	}
	if gt.Locked() {
		t.Error("fresh reviewer row should not be locked")
	}

	// Reviewer update keeps original_value frozen.
	err = s.WriteGroundTruths([]GroundTruthWrite{
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], Value: "no"},
	}, reviewerID, false)
	if err != nil {
		t.Fatalf("WriteGroundTruths update: %v", err)
	}
	gt, _ = s.GetGroundTruth(lab.VideoID, lab.ProjectID, lab.Questions[0])
	if gt.AnswerValue != "no" || gt.OriginalValue != "yes" {
		t.Errorf("expected value 'no', original 'yes', got %+v", gt)
	}

	// Admin write locks the row.
	err = s.WriteGroundTruths([]GroundTruthWrite{
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], Value: "yes"},
	}, adminID, true)
	if err != nil {
		t.Fatalf("WriteGroundTruths admin: %v", err)
	}
	gt, _ = s.GetGroundTruth(lab.VideoID, lab.ProjectID, lab.Questions[0])
	if !gt.Locked() {
		t.Fatal("expected row locked after admin write")
	}
	if *gt.ModifiedByAdmin != adminID {
		t.Errorf("expected modified_by_admin %d, got %d", adminID, *gt.ModifiedByAdmin)
	}

	// Non-admin write touching the locked row vetoes the whole batch:
	// the Q2 write must not survive.
	err = s.WriteGroundTruths([]GroundTruthWrite{
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[1], Value: "no"},
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], Value: "no"},
	}, reviewerID, false)
	if err != ErrLockedRow {
		t.Fatalf("expected ErrLockedRow, got %v", err)
	}
	q2gt, err := s.GetGroundTruth(lab.VideoID, lab.ProjectID, lab.Questions[1])
	if err != nil {
		t.Fatalf("GetGroundTruth Q2: %v", err)
	}
	if q2gt != nil {
		t.Errorf("expected no Q2 row after rollback, got %+v", q2gt)
	}
	gt, _ = s.GetGroundTruth(lab.VideoID, lab.ProjectID, lab.Questions[0])
	if gt.AnswerValue != "yes" {
		t.Errorf("locked value changed to %q", gt.AnswerValue)
	}

	// Admin can still write over a locked row.
	err = s.WriteGroundTruths([]GroundTruthWrite{
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], Value: "no"},
	}, adminID, true)
	if err != nil {
		t.Fatalf("WriteGroundTruths admin over lock: %v", err)
	}
	gt, _ = s.GetGroundTruth(lab.VideoID, lab.ProjectID, lab.Questions[0])
	if gt.AnswerValue != "no" || !gt.Locked() {
		t.Errorf("expected 'no' and still locked, got %+v", gt)
	}

	locked, err := s.ListLockedQuestions(lab.VideoID, lab.ProjectID, lab.GroupID)
	if err != nil {
		t.Fatalf("ListLockedQuestions: %v", err)
	}
	if len(locked) != 1 || locked[0] != lab.Questions[0] {
		t.Errorf("expected locked [%d], got %v", lab.Questions[0], locked)
	}

	count, err := s.CountGroundTruthForGroup(lab.VideoID, lab.ProjectID, lab.GroupID)
	if err != nil {
		t.Fatalf("CountGroundTruthForGroup: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 ground truth row, got %d", count)
	}
}

func TestAnswerReviews(t *testing.T) {
	s := newTestStore(t)
	lab := seedLab(t, s, "Q1")
	annotatorID := createTestUser(t, s, "anno", model.UserRoleAnnotator)
	rev1 := createTestUser(t, s, "rev1", model.UserRoleReviewer)
	rev2 := createTestUser(t, s, "rev2", model.UserRoleReviewer)

	err := s.UpsertAnswers([]model.Answer{{
		VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0],
		UserID: annotatorID, AnswerValue: "a dog jumps",
	}})
	if err != nil {
		t.Fatalf("UpsertAnswers: %v", err)
	}
	answer, _ := s.GetAnswer(lab.VideoID, lab.ProjectID, lab.Questions[0], annotatorID)

	// Never-reviewed answer has no row.
	review, err := s.GetAnswerReview(answer.ID)
	if err != nil {
		t.Fatalf("GetAnswerReview: %v", err)
	}
	if review != nil {
		t.Errorf("expected nil review, got %+v", review)
	}

	if err := s.UpsertAnswerReview(answer.ID, rev1, model.ReviewApproved); err != nil {
		t.Fatalf("UpsertAnswerReview: %v", err)
	}
	review, _ = s.GetAnswerReview(answer.ID)
	if review.Status != model.ReviewApproved || *review.ReviewerID != rev1 {
		t.Errorf("expected approved by rev1, got %+v", review)
	}

	// Last writer wins.
	if err := s.UpsertAnswerReview(answer.ID, rev2, model.ReviewRejected); err != nil {
		t.Fatalf("UpsertAnswerReview update: %v", err)
	}
	review, _ = s.GetAnswerReview(answer.ID)
	if review.Status != model.ReviewRejected || *review.ReviewerID != rev2 {
		t.Errorf("expected rejected by rev2, got %+v", review)
	}
}

func TestMarkAutoSubmitRun(t *testing.T) {
	s := newTestStore(t)
	userID := createTestUser(t, s, "anno", model.UserRoleAnnotator)

	token, err := s.CreateAuthSession(userID)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}

	ran, err := s.HasAutoSubmitRun(token, 1)
	if err != nil {
		t.Fatalf("HasAutoSubmitRun: %v", err)
	}
	if ran {
		t.Error("expected no run before the first mark")
	}

	first, err := s.MarkAutoSubmitRun(token, 1)
	if err != nil {
		t.Fatalf("MarkAutoSubmitRun: %v", err)
	}
	if !first {
		t.Error("expected first mark to report true")
	}
	ran, err = s.HasAutoSubmitRun(token, 1)
	if err != nil {
		t.Fatalf("HasAutoSubmitRun: %v", err)
	}
	if !ran {
		t.Error("expected run to be recorded after mark")
	}
	again, err := s.MarkAutoSubmitRun(token, 1)
	if err != nil {
		t.Fatalf("MarkAutoSubmitRun again: %v", err)
	}
	if again {
		t.Error("expected repeat mark to report false")
	}

	// A different project is a separate trigger.
	other, err := s.MarkAutoSubmitRun(token, 2)
	if err != nil {
		t.Fatalf("MarkAutoSubmitRun project 2: %v", err)
	}
	if !other {
		t.Error("expected mark for second project to report true")
	}

	// Logout clears marks, so a fresh session re-arms the trigger.
	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	rearmed, err := s.MarkAutoSubmitRun(token, 1)
	if err != nil {
		t.Fatalf("MarkAutoSubmitRun after logout: %v", err)
	}
	if !rearmed {
		t.Error("expected mark after logout to report true")
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id, err := s.CreateUser(model.User{
		Username: "gpt", DisplayName: "GPT annotator", PasswordHash: "x",
		Role: model.UserRoleAnnotator, IsModel: true, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	createTestUser(t, s, "alice", model.UserRoleReviewer)

	u, err := s.GetUserByUsername("gpt")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || !u.IsModel {
		t.Fatalf("expected model user, got %+v", u)
	}

	models, err := s.ListModelUsers()
	if err != nil {
		t.Fatalf("ListModelUsers: %v", err)
	}
	if len(models) != 1 || models[0].ID != id {
		t.Errorf("expected one model user %d, got %v", id, models)
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if u.Active {
		t.Error("expected user deactivated")
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash("/some/schema.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/schema.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, err = s.GetImportedFileHash("/some/schema.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash("/some/schema.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/schema.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestImportSchema(t *testing.T) {
	s := newTestStore(t)

	def := "no"
	schemaID, count, err := s.ImportSchema("actions", []model.GroupImport{
		{
			Title:        "presence",
			IsAutoSubmit: true,
			Questions: []model.QuestionImport{
				{Text: "Person visible?", Type: model.QuestionSingle, Options: []string{"yes", "no"}, DefaultOption: &def},
				{Text: "Describe the scene", Type: model.QuestionDescription},
			},
		},
		{
			Title: "quality",
			Questions: []model.QuestionImport{
				// Type defaults to single.
				{Text: "Blurry?", Options: []string{"yes", "no"}},
			},
		},
	})
	if err != nil {
		t.Fatalf("ImportSchema: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 questions imported, got %d", count)
	}

	groups, err := s.ListGroupsBySchema(schemaID)
	if err != nil {
		t.Fatalf("ListGroupsBySchema: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if !groups[0].IsAutoSubmit || groups[1].IsAutoSubmit {
		t.Errorf("auto-submit flags wrong: %v, %v", groups[0].IsAutoSubmit, groups[1].IsAutoSubmit)
	}

	questions, err := s.ListQuestionsForGroup(groups[0].ID)
	if err != nil {
		t.Fatalf("ListQuestionsForGroup: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions in presence group, got %d", len(questions))
	}
	if questions[0].Text != "Person visible?" || questions[1].Type != model.QuestionDescription {
		t.Errorf("unexpected questions: %+v", questions)
	}

	blurry, err := s.ListQuestionsForGroup(groups[1].ID)
	if err != nil {
		t.Fatalf("ListQuestionsForGroup quality: %v", err)
	}
	if len(blurry) != 1 || blurry[0].Type != model.QuestionSingle {
		t.Errorf("expected single-type default, got %+v", blurry)
	}
}

func TestExportProject(t *testing.T) {
	s := newTestStore(t)
	lab := seedLab(t, s, "Q1", "Q2")
	annotatorID := createTestUser(t, s, "anno", model.UserRoleAnnotator)
	reviewerID := createTestUser(t, s, "rev", model.UserRoleReviewer)

	err := s.UpsertAnswers([]model.Answer{
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], UserID: annotatorID, AnswerValue: "yes"},
	})
	if err != nil {
		t.Fatalf("UpsertAnswers: %v", err)
	}
	answer, _ := s.GetAnswer(lab.VideoID, lab.ProjectID, lab.Questions[0], annotatorID)
	if err := s.UpsertAnswerReview(answer.ID, reviewerID, model.ReviewApproved); err != nil {
		t.Fatalf("UpsertAnswerReview: %v", err)
	}
	err = s.WriteGroundTruths([]GroundTruthWrite{
		{VideoID: lab.VideoID, ProjectID: lab.ProjectID, QuestionID: lab.Questions[0], Value: "yes"},
	}, reviewerID, false)
	if err != nil {
		t.Fatalf("WriteGroundTruths: %v", err)
	}

	export, err := s.ExportProject(lab.ProjectID)
	if err != nil {
		t.Fatalf("ExportProject: %v", err)
	}
	if export.NumVideos != 1 || len(export.Videos) != 1 {
		t.Fatalf("expected 1 video, got %+v", export)
	}
	vr := export.Videos[0]
	if vr.VideoUID != "vid-1" {
		t.Errorf("expected uid vid-1, got %q", vr.VideoUID)
	}
	if len(vr.Questions) != 2 {
		t.Fatalf("expected 2 question results, got %d", len(vr.Questions))
	}
	q1 := vr.Questions[0]
	if q1.GroundTruth == nil || *q1.GroundTruth != "yes" {
		t.Errorf("expected ground truth 'yes', got %v", q1.GroundTruth)
	}
	if len(q1.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(q1.Answers))
	}
	if q1.Answers[0].Username != "anno" || q1.Answers[0].ReviewStatus != model.ReviewApproved {
		t.Errorf("unexpected answer result: %+v", q1.Answers[0])
	}
	// Unanswered question still appears, with pending nothing.
	if vr.Questions[1].GroundTruth != nil || len(vr.Questions[1].Answers) != 0 {
		t.Errorf("expected empty Q2 result, got %+v", vr.Questions[1])
	}

	// Rates are left for the caller.
	if vr.ConsensusRate != nil || vr.AccuracyRate != nil {
		t.Error("expected rates unset in raw export")
	}
}
