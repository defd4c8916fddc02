package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

type GeminiClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewGeminiClient(cfg Config, logger *slog.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}, nil
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: toGeminiParts(req)}},
		GenerationConfig: map[string]any{
			"temperature":      c.temperature,
			"responseMimeType": "application/json",
		},
	}
	if req.Output != nil {
		body.GenerationConfig["responseSchema"] = req.Output.Gemini()
	}

	start := time.Now()
	raw, err := c.doJSON(ctx, fmt.Sprintf("/v1beta/models/%s:generateContent", url.PathEscape(c.model)), body)
	if err != nil {
		c.logger.Warn("generation failed", "flow", req.Flow, "model", c.model, "err", err)
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Join(ErrMalformedResult, err)
	}
	if resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrMalformedResult, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrMalformedResult)
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, fmt.Errorf("%w: empty candidate (finish=%s)", ErrMalformedResult, resp.Candidates[0].FinishReason)
	}

	result, err := Conform(text.String(), req.Output)
	if err != nil {
		c.logger.Warn("generation result rejected", "flow", req.Flow, "err", err)
		return nil, err
	}
	c.logger.Debug("generation finished", "flow", req.Flow, "model", c.model, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return result, nil
}

func toGeminiParts(req Request) []geminiPart {
	parts := make([]geminiPart, 0, len(req.Prompt.Parts))
	for _, p := range req.Prompt.Parts {
		if p.Media != nil {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{
				MIMEType: p.Media.MIMEType,
				Data:     p.Media.Base64(),
			}})
			continue
		}
		parts = append(parts, geminiPart{Text: p.Text})
	}
	return parts
}

func (c *GeminiClient) doJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	var apiErr geminiError
	_ = json.Unmarshal(respBody, &apiErr)
	detail := strings.TrimSpace(apiErr.Error.Message)
	if detail == "" {
		detail = truncateText(string(respBody), 240)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable,
		apiErr.Error.Status == "RESOURCE_EXHAUSTED",
		apiErr.Error.Status == "UNAVAILABLE":
		return nil, fmt.Errorf("%w: status=%d %s", ErrOverloaded, resp.StatusCode, detail)
	default:
		return nil, fmt.Errorf("%w: status=%d %s", ErrUnavailable, resp.StatusCode, detail)
	}
}
