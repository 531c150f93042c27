package store

import (
	"fmt"
	"time"

	"github.com/annolab/annolab/internal/model"
)

// ExportProject builds an export-ready view of a project's curated
// annotations: per video, per question, the ground truth plus every
// raw answer with its review verdict. Consensus/accuracy diagnostics
// are left unset; the caller decorates them.
func (s *Store) ExportProject(projectID int64) (*model.ProjectExport, error) {
	project, err := s.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", projectID, err)
	}
	if project == nil {
		return nil, fmt.Errorf("project %d not found", projectID)
	}
	schema, err := s.GetSchema(project.SchemaID)
	if err != nil {
		return nil, fmt.Errorf("get schema %d: %w", project.SchemaID, err)
	}

	groups, err := s.ListGroupsBySchema(project.SchemaID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	var questions []model.Question
	for _, g := range groups {
		qs, err := s.ListQuestionsForGroup(g.ID)
		if err != nil {
			return nil, fmt.Errorf("list questions for group %d: %w", g.ID, err)
		}
		questions = append(questions, qs...)
	}

	videos, err := s.ListProjectVideos(projectID)
	if err != nil {
		return nil, fmt.Errorf("list project videos: %w", err)
	}

	// Usernames for answer attribution.
	users, err := s.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	userByID := make(map[int64]model.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	export := &model.ProjectExport{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		ExportedAt:  time.Now(),
		NumVideos:   len(videos),
	}
	if schema != nil {
		export.SchemaName = schema.Name
	}

	for _, v := range videos {
		vr := model.VideoResult{VideoUID: v.UID, VideoURL: v.URL}
		for _, q := range questions {
			qr := model.QuestionResult{Text: q.Text, Type: q.Type}

			gt, err := s.GetGroundTruth(v.ID, projectID, q.ID)
			if err != nil {
				return nil, fmt.Errorf("get ground truth (video %d, question %d): %w", v.ID, q.ID, err)
			}
			if gt != nil {
				qr.GroundTruth = &gt.AnswerValue
				qr.OriginalValue = &gt.OriginalValue
				qr.ModifiedByAdmin = gt.ModifiedByAdmin
			}

			answers, err := s.ListAnswersForQuestion(v.ID, projectID, q.ID)
			if err != nil {
				return nil, fmt.Errorf("list answers (video %d, question %d): %w", v.ID, q.ID, err)
			}
			for _, a := range answers {
				ar := model.AnswerResult{
					Value:        a.AnswerValue,
					Confidence:   a.ConfidenceScore,
					ReviewStatus: model.ReviewPending,
					SubmittedAt:  a.UpdatedAt,
				}
				if u, ok := userByID[a.UserID]; ok {
					ar.Username = u.Username
					ar.IsModel = u.IsModel
				}
				review, err := s.GetAnswerReview(a.ID)
				if err != nil {
					return nil, fmt.Errorf("get review for answer %d: %w", a.ID, err)
				}
				if review != nil {
					ar.ReviewStatus = review.Status
				}
				qr.Answers = append(qr.Answers, ar)
			}
			vr.Questions = append(vr.Questions, qr)
		}
		export.Videos = append(export.Videos, vr)
	}

	return export, nil
}
