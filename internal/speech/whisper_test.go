package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/media"
)

func TestTranscribeUploadsAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "audio.ogg" || string(data) != "OggS" {
			t.Fatalf("unexpected upload %s %q", header.Filename, data)
		}
		if r.FormValue("language") != "as" {
			t.Fatalf("expected language hint, got %q", r.FormValue("language"))
		}
		_, _ = w.Write([]byte(`{"text":" pani kheuwa ","language":"as"}`))
	}))
	defer server.Close()

	lang := "as"
	text, err := NewWhisperClient(server.URL, nil).Transcribe(context.Background(), media.New("audio/ogg", []byte("OggS")), &lang)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "pani kheuwa" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestTranscribeOmitsLanguageForDetection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Fatalf("language must be omitted")
		}
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer server.Close()

	if _, err := NewWhisperClient(server.URL, nil).Transcribe(context.Background(), media.New("audio/webm", []byte{1}), nil); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
}

func TestTranscribeMapsFailures(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusServiceUnavailable, "busy", genai.ErrOverloaded},
		{http.StatusInternalServerError, "boom", genai.ErrUnavailable},
		{http.StatusOK, "not json", genai.ErrMalformedResult},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		_, err := NewWhisperClient(server.URL, nil).Transcribe(context.Background(), media.New("audio/wav", []byte{1}), nil)
		server.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}
