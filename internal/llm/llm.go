package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/annolab/annolab/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// AnnotationResult is a model annotator's answer to one question,
// with its self-reported confidence in [0, 1].
type AnnotationResult struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Client wraps an OpenAI-compatible API client acting as a model
// annotator. Its answers flow through the same lifecycle as human
// answers, carrying a per-answer confidence score.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new model annotator client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint responds before a run starts.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("LLM ping: %w", err)
	}
	return nil
}

// AnnotateQuestion asks the model one question about a video and
// returns its answer with confidence. Single-type answers are checked
// against the declared option set; an out-of-set answer falls back to
// the question's default option when one exists.
func (c *Client) AnnotateQuestion(ctx context.Context, video model.Video, q model.Question) (*AnnotationResult, error) {
	systemPrompt := buildAnnotationSystemPrompt(q)
	userPrompt := buildAnnotationUserPrompt(video, q)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM annotation response", "raw", raw)

	var result AnnotationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	if q.Type == model.QuestionSingle && !slices.Contains(q.Options, result.Answer) {
		if q.DefaultOption == nil {
			return nil, fmt.Errorf("LLM answer %q is not an option of question %q", result.Answer, q.Text)
		}
		slog.Warn("LLM answer outside option set, using default",
			"question", q.Text, "answer", result.Answer, "default", *q.DefaultOption)
		result.Answer = *q.DefaultOption
		result.Confidence = 0
	}

	return &result, nil
}

func buildAnnotationSystemPrompt(q model.Question) string {
	var sb strings.Builder
	sb.WriteString("You are a video annotation model. You answer one question about a video ")
	sb.WriteString("and report how confident you are.\n\n")

	if q.Type == model.QuestionSingle {
		sb.WriteString("Answer with EXACTLY one of the allowed options, verbatim:\n")
		for _, opt := range q.Options {
			sb.WriteString("- " + opt + "\n")
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("Answer with a short free-text description of what the video shows.\n\n")
	}

	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"answer": "<your answer>", "confidence": <number 0.0 to 1.0>, "reasoning": "<one sentence>"}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildAnnotationUserPrompt(video model.Video, q model.Question) string {
	var sb strings.Builder
	sb.WriteString("VIDEO URL: " + video.URL + "\n")
	sb.WriteString("VIDEO UID: " + video.UID + "\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n")
	return sb.String()
}
