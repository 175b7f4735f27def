package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/georgeshao/genstudio/internal/config"
)

const (
	OptimizerModel = "gemini-3-flash-preview"

	optimizerInstruction = "You are an expert in image prompts. Rewrite the prompt with richer detail while keeping its intent."
)

var ErrEmptyCompletion = errors.New("completion returned no text")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// OptimizePrompt asks the optimizer model for a more detailed prompt.
func (c *Client) OptimizePrompt(ctx context.Context, cred config.Credential, prompt string) (string, error) {
	body, err := c.PostJSON(ctx, cred, "/v1/chat/completions", chatRequest{
		Model: OptimizerModel,
		Messages: []chatMessage{
			{Role: "system", Content: optimizerInstruction},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("optimize prompt: %w", err)
	}

	text := strings.TrimSpace(body.Lookup("choices", "0", "message", "content").Str())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
