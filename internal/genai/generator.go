// Package genai is the single integration seam with the generative backend.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"suraksha-jal/internal/prompt"
	"suraksha-jal/internal/schema"
)

var (
	ErrUnavailable     = errors.New("generation backend unavailable")
	ErrOverloaded      = errors.New("generation backend overloaded")
	ErrMalformedResult = errors.New("malformed generation result")
)

type Request struct {
	Flow   string
	Prompt prompt.Prompt
	Output *schema.Schema
}

// Generator submits a rendered prompt and returns a result that already
// conforms to req.Output. Implementations never retry.
type Generator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

type GeneratorFunc func(ctx context.Context, req Request) (json.RawMessage, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// Conform strips markdown fences around content and checks it against out.
func Conform(content string, out *schema.Schema) (json.RawMessage, error) {
	payload := extractJSONPayload(content)
	if !json.Valid([]byte(payload)) {
		return nil, errors.Join(ErrMalformedResult, errors.New("result is not JSON: "+truncateText(content, 240)))
	}
	if out != nil {
		if err := out.ValidateJSON([]byte(payload)); err != nil {
			return nil, errors.Join(ErrMalformedResult, err)
		}
	}
	return json.RawMessage(payload), nil
}

func extractJSONPayload(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

func truncateText(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
