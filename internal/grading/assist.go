package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
)

// Suggestion is an LLM-proposed grade for one descriptive answer. Advisory
// only: a human grader reviews it and assigns the actual marks.
type Suggestion struct {
	Marks    float64 `json:"marks"`
	MaxMarks float64 `json:"max_marks"`
	Feedback string  `json:"feedback"`
}

// AssistClient wraps an OpenAI-compatible API for grade suggestions.
type AssistClient struct {
	api   *openai.Client
	model string
}

// NewAssist creates a grade-suggestion client.
func NewAssist(baseURL, apiKey, modelName string) *AssistClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &AssistClient{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable.
func (c *AssistClient) Ping(ctx context.Context) error {
	_, err := c.api.ListModels(ctx)
	return err
}

// SuggestGrade asks the LLM for a score and feedback on a descriptive answer.
func (c *AssistClient) SuggestGrade(ctx context.Context, q model.Question, response string) (*Suggestion, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSuggestPrompt(q)},
			{Role: openai.ChatMessageRoleUser, Content: response},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM suggestion", "raw", raw)

	var s Suggestion
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	// The model occasionally wanders outside the rubric range.
	if s.Marks < 0 {
		s.Marks = 0
	}
	if s.Marks > q.Marks {
		s.Marks = q.Marks
	}
	s.MaxMarks = q.Marks
	return &s, nil
}

func buildSuggestPrompt(q model.Question) string {
	var sb strings.Builder
	sb.WriteString("You are assisting a human exam grader. The student answered the following descriptive question:\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n\n")
	sb.WriteString(fmt.Sprintf("MAX MARKS: %g\n\n", q.Marks))
	if q.Explanation != "" {
		sb.WriteString("REFERENCE NOTES (not shown to student):\n" + q.Explanation + "\n\n")
	}
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Assess the answer for correctness, completeness, and understanding.\n")
	sb.WriteString("- Your score is a suggestion; a human grader makes the final call.\n")
	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"marks": <number 0 to max_marks>, "max_marks": <max_marks>, "feedback": "<brief feedback>"}`)
	sb.WriteString("\n")
	return sb.String()
}
