package store

import (
	"fmt"

	"github.com/annolab/annolab/internal/model"
)

// ImportSchema creates a schema with its groups and questions from a
// parsed schema definition. Returns the new schema ID and the number
// of questions inserted.
func (s *Store) ImportSchema(name string, groups []model.GroupImport) (int64, int, error) {
	schemaID, err := s.CreateSchema(name)
	if err != nil {
		return 0, 0, fmt.Errorf("create schema: %w", err)
	}
	var count int
	for _, gi := range groups {
		groupID, err := s.CreateGroup(model.QuestionGroup{
			SchemaID:     schemaID,
			Title:        gi.Title,
			Description:  gi.Description,
			IsAutoSubmit: gi.IsAutoSubmit,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("create group %q: %w", gi.Title, err)
		}
		for i, qi := range gi.Questions {
			qType := qi.Type
			if qType == "" {
				qType = model.QuestionSingle
			}
			_, err := s.InsertQuestion(model.Question{
				GroupID:       groupID,
				Text:          qi.Text,
				Type:          qType,
				Options:       qi.Options,
				DefaultOption: qi.DefaultOption,
				DisplayOrder:  i,
			})
			if err != nil {
				return 0, 0, fmt.Errorf("insert question %q: %w", qi.Text, err)
			}
			count++
		}
	}
	return schemaID, count, nil
}
