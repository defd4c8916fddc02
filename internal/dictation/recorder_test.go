package dictation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/media"
)

type stubTranscriber struct {
	text     string
	err      error
	audio    media.DataURI
	language *string
}

func (s *stubTranscriber) Transcribe(_ context.Context, audio media.DataURI, language *string) (string, error) {
	s.audio, s.language = audio, language
	return s.text, s.err
}

func TestStartNeedsPermission(t *testing.T) {
	r := NewRecorder(&stubTranscriber{}, nil)
	if _, err := r.Start("audio/webm"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	r.SetPermission(false)
	if _, err := r.Start("audio/webm"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestStopDrainsChunksAndAppendsText(t *testing.T) {
	tr := &stubTranscriber{text: " and vomiting "}
	r := NewRecorder(tr, nil)
	r.SetText("fever")
	r.SetPermission(true)
	if _, err := r.Start("audio/ogg"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_ = r.Write([]byte("ab"))
	_ = r.Write([]byte("cd"))

	snap, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if snap.Text != "fever and vomiting" || snap.State != StateIdle {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if string(tr.audio.Data) != "abcd" || tr.audio.MIMEType != "audio/ogg" {
		t.Fatalf("unexpected audio %+v", tr.audio)
	}
	if tr.language != nil {
		t.Fatalf("expected no language hint")
	}
	if err := r.Write([]byte("x")); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording after stop, got %v", err)
	}
}

func TestStopFailureKeepsText(t *testing.T) {
	r := NewRecorder(&stubTranscriber{err: genai.ErrUnavailable}, nil)
	r.SetText("headache")
	r.SetPermission(true)
	_, _ = r.Start("")
	_ = r.Write([]byte("x"))
	snap, err := r.Stop(context.Background())
	if !errors.Is(err, genai.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if snap.Text != "headache" || snap.State != StateIdle {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStopWithoutAudio(t *testing.T) {
	r := NewRecorder(&stubTranscriber{}, nil)
	r.SetPermission(true)
	_, _ = r.Start("")
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrEmptyRecording) {
		t.Fatalf("expected ErrEmptyRecording, got %v", err)
	}
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestAppendText(t *testing.T) {
	cases := []struct{ existing, add, want string }{
		{"", "hello", "hello"},
		{"hello ", "world", "hello world"},
		{"hello", "  ", "hello"},
	}
	for _, tc := range cases {
		if got := appendText(tc.existing, tc.add); got != tc.want {
			t.Fatalf("appendText(%q, %q) = %q, want %q", tc.existing, tc.add, got, tc.want)
		}
	}
}

func TestFlowTranscriberPassesLanguage(t *testing.T) {
	var prompt string
	gen := genai.GeneratorFunc(func(_ context.Context, req genai.Request) (json.RawMessage, error) {
		prompt = req.Prompt.Text()
		return json.RawMessage(`{"text":"pani garam karke piyo"}`), nil
	})
	tr := FlowTranscriber{Flows: flows.NewService(gen, nil)}
	lang := "Hindi"
	text, err := tr.Transcribe(context.Background(), media.New("audio/webm", []byte{1, 2}), &lang)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "pani garam karke piyo" || !strings.Contains(prompt, "Hindi") {
		t.Fatalf("unexpected transcription %q for prompt %q", text, prompt)
	}
}

func TestHandlerDictationRoundTrip(t *testing.T) {
	h := NewHandler(&stubTranscriber{text: "stomach pain"}, nil)
	router := chi.NewRouter()
	RegisterRoutes(router, h)
	do := func(method, path, contentType string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/dictations", "application/json", []byte(`{"text":"since morning"}`))
	var created response
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	base := "/dictations/" + created.ID.String()

	if rec := do(http.MethodPost, base+"/start", "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without permission, got %d", rec.Code)
	}
	do(http.MethodPost, base+"/permission", "application/json", []byte(`{"granted":true}`))
	do(http.MethodPost, base+"/start", "application/json", []byte(`{"mimeType":"audio/webm"}`))
	if rec := do(http.MethodPost, base+"/chunks", "text/plain", []byte("x")); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
	if rec := do(http.MethodPost, base+"/chunks", "audio/webm", []byte{0x1a, 0x45}); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = do(http.MethodPost, base+"/stop", "", nil)
	var stopped response
	_ = json.Unmarshal(rec.Body.Bytes(), &stopped)
	if rec.Code != http.StatusOK || stopped.Text != "since morning stomach pain" {
		t.Fatalf("unexpected stop response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerDropsIdleSessions(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	h := NewHandler(&stubTranscriber{}, nil)
	h.now = func() time.Time { return now }
	router := chi.NewRouter()
	RegisterRoutes(router, h)
	create := func() response {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dictations", nil))
		var created response
		_ = json.Unmarshal(rec.Body.Bytes(), &created)
		return created
	}

	old := create()
	now = now.Add(10 * time.Minute)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dictations/"+old.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected recently used session, got %d", rec.Code)
	}

	now = now.Add(sessionIdleTTL + time.Minute)
	create()
	if len(h.sessions) != 1 {
		t.Fatalf("expected idle session swept, have %d", len(h.sessions))
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dictations/"+old.ID.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for idle session, got %d", rec.Code)
	}
}
