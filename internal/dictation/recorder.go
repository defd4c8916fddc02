// Package dictation turns recorded speech into text appended to a field.
package dictation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/media"
)

type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNotRecording     = errors.New("not recording")
	ErrBusy             = errors.New("recording or transcription already in progress")
	ErrEmptyRecording   = errors.New("nothing was recorded")
)

const maxRecordingBytes = 10 << 20

// Transcriber converts recorded audio to text. A nil language asks for
// automatic detection.
type Transcriber interface {
	Transcribe(ctx context.Context, audio media.DataURI, language *string) (string, error)
}

// FlowTranscriber transcribes through the generation backend.
type FlowTranscriber struct {
	Flows *flows.Service
}

func (t FlowTranscriber) Transcribe(ctx context.Context, audio media.DataURI, language *string) (string, error) {
	out, err := t.Flows.TranscribeAudio(ctx, flows.TranscribeInput{AudioDataURI: audio.String(), Language: language})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

type Snapshot struct {
	State      State  `json:"state"`
	Permission string `json:"permission"`
	Text       string `json:"text"`
}

// Recorder buffers audio chunks between Start and Stop and appends the
// transcript to its text.
type Recorder struct {
	mu         sync.Mutex
	state      State
	permission string
	mimeType   string
	chunks     [][]byte
	size       int
	text       string
	language   *string
	tr         Transcriber
}

func NewRecorder(tr Transcriber, language *string) *Recorder {
	return &Recorder{state: StateIdle, permission: "unknown", tr: tr, language: language}
}

func (r *Recorder) SetPermission(granted bool) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if granted {
		r.permission = "granted"
	} else {
		r.permission = "denied"
		if r.state == StateRecording {
			r.state, r.chunks, r.size = StateIdle, nil, 0
		}
	}
	return r.snapshot()
}

// Start acquires the microphone. Recording needs permission to be granted.
func (r *Recorder) Start(mimeType string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.permission != "granted" {
		return r.snapshot(), ErrPermissionDenied
	}
	if r.state != StateIdle {
		return r.snapshot(), ErrBusy
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	r.state, r.mimeType, r.chunks, r.size = StateRecording, mimeType, nil, 0
	return r.snapshot(), nil
}

func (r *Recorder) Write(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return ErrNotRecording
	}
	if r.size+len(chunk) > maxRecordingBytes {
		return fmt.Errorf("recording exceeds %d bytes", maxRecordingBytes)
	}
	r.chunks = append(r.chunks, append([]byte(nil), chunk...))
	r.size += len(chunk)
	return nil
}

// Stop drains the buffered chunks into one blob and transcribes it. On
// failure the text is left unchanged.
func (r *Recorder) Stop(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		defer r.mu.Unlock()
		return r.snapshot(), ErrNotRecording
	}
	blob := bytes.Join(r.chunks, nil)
	r.chunks, r.size = nil, 0
	if len(blob) == 0 {
		r.state = StateIdle
		defer r.mu.Unlock()
		return r.snapshot(), ErrEmptyRecording
	}
	r.state = StateTranscribing
	audio, language := media.New(r.mimeType, blob), r.language
	r.mu.Unlock()

	text, err := r.tr.Transcribe(ctx, audio, language)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateIdle
	if err != nil {
		return r.snapshot(), err
	}
	r.text = appendText(r.text, text)
	return r.snapshot(), nil
}

// SetText replaces the text, e.g. after the user edits the field.
func (r *Recorder) SetText(text string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	return r.snapshot()
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Recorder) snapshot() Snapshot {
	return Snapshot{State: r.state, Permission: r.permission, Text: r.text}
}

func appendText(existing, addition string) string {
	addition = strings.TrimSpace(addition)
	switch {
	case addition == "":
		return existing
	case strings.TrimSpace(existing) == "":
		return addition
	default:
		return strings.TrimRight(existing, " ") + " " + addition
	}
}
