package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/media"
)

type recordingAssistant struct {
	inputs []flows.ChatInput
	reply  string
	err    error
}

func (a *recordingAssistant) Chat(_ context.Context, in flows.ChatInput) (flows.ChatOutput, error) {
	a.inputs = append(a.inputs, in)
	return flows.ChatOutput{Reply: a.reply}, a.err
}

type fixedTranscriber struct {
	text  string
	audio media.DataURI
}

func (f *fixedTranscriber) Transcribe(_ context.Context, audio media.DataURI, _ *string) (string, error) {
	f.audio = audio
	return f.text, nil
}

func TestSendCarriesHistory(t *testing.T) {
	a := &recordingAssistant{reply: "Boil water for one minute."}
	svc := NewService(NewMemoryRepository(), a, nil, nil)
	ctx := context.Background()
	lang := "Assamese"
	sess, err := svc.Create(ctx, "asha@example.org", &lang)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Send(ctx, "asha@example.org", sess.ID, "Is tap water safe?"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := svc.Send(ctx, "asha@example.org", sess.ID, "How long should I boil it?"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(a.inputs[0].History) != 0 {
		t.Fatalf("first turn must have no history")
	}
	second := a.inputs[1]
	if len(second.History) != 2 || second.History[0].Role != flows.RoleUser || second.History[1].Role != flows.RoleModel {
		t.Fatalf("unexpected history %+v", second.History)
	}
	if second.Language == nil || *second.Language != "Assamese" {
		t.Fatalf("expected session language to be passed")
	}

	got, _ := svc.Get(ctx, "asha@example.org", sess.ID)
	if len(got.Messages) != 4 {
		t.Fatalf("expected 4 stored messages, got %d", len(got.Messages))
	}
}

func TestFailedTurnRecordsNothing(t *testing.T) {
	a := &recordingAssistant{err: genai.ErrOverloaded}
	svc := NewService(NewMemoryRepository(), a, nil, nil)
	ctx := context.Background()
	sess, _ := svc.Create(ctx, "u", nil)

	if _, err := svc.Send(ctx, "u", sess.ID, "hello"); !errors.Is(err, genai.ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}
	got, _ := svc.Get(ctx, "u", sess.ID)
	if len(got.Messages) != 0 {
		t.Fatalf("failed turn must not be stored, got %+v", got.Messages)
	}
}

func TestSessionsAreOwnerScoped(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &recordingAssistant{reply: "hi"}, nil, nil)
	sess, _ := svc.Create(context.Background(), "a", nil)
	if _, err := svc.Get(context.Background(), "b", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Send(context.Background(), "b", sess.ID, "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func newRouter(svc *Service, subject string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}
			next.ServeHTTP(w, req.WithContext(auth.WithClaims(req.Context(), claims)))
		})
	})
	RegisterRoutes(r, NewHandler(svc))
	return r
}

func TestHandlerConversation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &recordingAssistant{reply: "Use ORS."}, nil, nil)
	router := newRouter(svc, "ravi@example.org")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions", nil))
	var sess Session
	_ = json.Unmarshal(rec.Body.Bytes(), &sess)
	if rec.Code != http.StatusCreated || sess.ID == uuid.Nil {
		t.Fatalf("unexpected create response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/"+sess.ID.String()+"/messages",
		strings.NewReader(`{"message":"My child has diarrhoea"}`)))
	var reply Message
	_ = json.Unmarshal(rec.Body.Bytes(), &reply)
	if rec.Code != http.StatusOK || reply.Content != "Use ORS." || reply.Role != flows.RoleModel {
		t.Fatalf("unexpected reply %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlerMapsGenerationErrors(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &recordingAssistant{err: genai.ErrUnavailable}, nil, nil)
	sess, _ := svc.Create(context.Background(), "u", nil)
	rec := httptest.NewRecorder()
	newRouter(svc, "u").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/"+sess.ID.String()+"/messages",
		strings.NewReader(`{"message":"hello"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandlerAudioMessage(t *testing.T) {
	tr := &fixedTranscriber{text: "pet mein dard"}
	svc := NewService(NewMemoryRepository(), &recordingAssistant{reply: "Drink clean water."}, tr, nil)
	sess, _ := svc.Create(context.Background(), "u", nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="audio"; filename="voice.ogg"`)
	hdr.Set("Content-Type", "audio/ogg")
	part, _ := mw.CreatePart(hdr)
	_, _ = part.Write([]byte{1, 2, 3})
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions/"+sess.ID.String()+"/audio", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newRouter(svc, "u").ServeHTTP(rec, req)

	var res audioResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if rec.Code != http.StatusOK || res.Text != "pet mein dard" || res.Reply == nil || res.Reply.Content != "Drink clean water." {
		t.Fatalf("unexpected audio response %d %s", rec.Code, rec.Body.String())
	}
	if tr.audio.MIMEType != "audio/ogg" {
		t.Fatalf("expected part content type to be kept, got %q", tr.audio.MIMEType)
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	repo := newMemoryRepo(clock)
	svc := NewService(repo, &recordingAssistant{reply: "ok"}, nil, nil)
	svc.now = clock
	ctx := context.Background()

	old, _ := svc.Create(ctx, "u", nil)
	now = now.Add(20 * time.Hour)
	if _, err := svc.Send(ctx, "u", old.ID, "still there?"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(svc.turns) != 0 {
		t.Fatalf("expected turn locks released, have %d", len(svc.turns))
	}

	now = now.Add(sessionIdleTTL + time.Hour)
	if _, err := svc.Create(ctx, "u", nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Get(ctx, "u", old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("expected idle session swept, have %d", len(repo.sessions))
	}
}
