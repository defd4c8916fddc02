// Package speech is the self-hosted Whisper transcription engine.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/media"
)

const DefaultURL = "http://whisper:8000/transcribe"

type WhisperClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWhisperClient(url string, logger *slog.Logger) *WhisperClient {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WhisperClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type whisperResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe uploads the audio as multipart form data. Without a language
// hint the service detects the language itself.
func (c *WhisperClient) Transcribe(ctx context.Context, audio media.DataURI, language *string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio"+audioExtension(audio.MIMEType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", err
	}
	if language != nil && strings.TrimSpace(*language) != "" {
		if err := writer.WriteField("language", strings.TrimSpace(*language)); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: whisper: %v", genai.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		sentinel := genai.ErrUnavailable
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			sentinel = genai.ErrOverloaded
		}
		return "", fmt.Errorf("%w: whisper returned %s: %s", sentinel, resp.Status, strings.TrimSpace(string(respBody)))
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode whisper response: %v", genai.ErrMalformedResult, err)
	}
	c.logger.Debug("whisper transcription done", "language", result.Language, "chars", len(result.Text))
	return strings.TrimSpace(result.Text), nil
}

func audioExtension(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	default:
		return ".webm"
	}
}
