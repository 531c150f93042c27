package llm

import (
	"strings"
	"testing"

	"github.com/annolab/annolab/internal/model"
)

func TestBuildAnnotationSystemPrompt(t *testing.T) {
	t.Run("single question lists options", func(t *testing.T) {
		q := model.Question{
			Text:    "Is there a person visible?",
			Type:    model.QuestionSingle,
			Options: []string{"yes", "no"},
		}
		prompt := buildAnnotationSystemPrompt(q)
		if !strings.Contains(prompt, "- yes") || !strings.Contains(prompt, "- no") {
			t.Error("prompt should list all options")
		}
		if !strings.Contains(prompt, "EXACTLY one of the allowed options") {
			t.Error("prompt should constrain the answer to options")
		}
		if !strings.Contains(prompt, `"confidence"`) {
			t.Error("prompt should request a confidence field")
		}
	})

	t.Run("description question has no option list", func(t *testing.T) {
		q := model.Question{
			Text: "Describe the scene.",
			Type: model.QuestionDescription,
		}
		prompt := buildAnnotationSystemPrompt(q)
		if strings.Contains(prompt, "allowed options") {
			t.Error("description prompt should not mention options")
		}
		if !strings.Contains(prompt, "free-text description") {
			t.Error("description prompt should ask for free text")
		}
	})
}

func TestBuildAnnotationUserPrompt(t *testing.T) {
	video := model.Video{UID: "abc-123", URL: "https://cdn.example.com/v/abc.mp4"}
	q := model.Question{Text: "Is the video blurry?"}

	prompt := buildAnnotationUserPrompt(video, q)
	if !strings.Contains(prompt, video.URL) {
		t.Error("prompt should contain the video URL")
	}
	if !strings.Contains(prompt, video.UID) {
		t.Error("prompt should contain the video UID")
	}
	if !strings.Contains(prompt, q.Text) {
		t.Error("prompt should contain the question text")
	}
}
