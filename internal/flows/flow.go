// Package flows holds one façade per user-facing feature. Every façade is an
// instance of Flow: an input contract, an output contract, a prompt template
// and a call into the generation backend.
package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/prompt"
	"suraksha-jal/internal/schema"
)

var ErrInvalidInput = errors.New("invalid input")

const DefaultDisclaimer = "This information is for general awareness only and is not a substitute for professional medical advice. Please consult a doctor or your local health worker."

type Flow[In, Out any] struct {
	Name     string
	Input    *schema.Schema
	Output   *schema.Schema
	Template *prompt.Template
	// Check runs after schema validation for rules a schema cannot express.
	Check func(In) error
}

// Run validates in, renders the prompt, invokes gen and decodes the result.
// Backend failures are returned unchanged.
func (f *Flow[In, Out]) Run(ctx context.Context, gen genai.Generator, in In) (Out, error) {
	var out Out
	if err := f.Validate(in); err != nil {
		return out, err
	}
	p, err := f.Template.Render(in)
	if err != nil {
		return out, fmt.Errorf("%s: %w", f.Name, err)
	}
	raw, err := gen.Generate(ctx, genai.Request{Flow: f.Name, Prompt: p, Output: f.Output})
	if err != nil {
		return out, err
	}
	if f.Output != nil {
		if err := f.Output.ValidateJSON(raw); err != nil {
			return out, errors.Join(genai.ErrMalformedResult, err)
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errors.Join(genai.ErrMalformedResult, err)
	}
	return out, nil
}

func (f *Flow[In, Out]) Validate(in In) error {
	if err := f.Input.ValidateValue(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if f.Check != nil {
		if err := f.Check(in); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return nil
}

// Service exposes the façades to handlers and other packages.
type Service struct {
	gen    genai.Generator
	now    func() time.Time
	logger *slog.Logger
}

func NewService(gen genai.Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{gen: gen, now: time.Now, logger: logger}
}

// WithClock replaces the time source used for report stamping.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func fieldError(field, message string) error {
	return &schema.ValidationError{Fields: []schema.FieldError{{Field: field, Message: message}}}
}

func withDisclaimer(d string) string {
	if strings.TrimSpace(d) == "" {
		return DefaultDisclaimer
	}
	return d
}
