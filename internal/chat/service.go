package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/media"
)

// Assistant answers one chat turn.
type Assistant interface {
	Chat(ctx context.Context, in flows.ChatInput) (flows.ChatOutput, error)
}

// Transcriber turns a voice message into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio media.DataURI, language *string) (string, error)
}

type Service struct {
	repo        Repository
	assistant   Assistant
	transcriber Transcriber
	now         func() time.Time
	logger      *slog.Logger

	// serialises turns per session so replies keep their order
	mu    sync.Mutex
	turns map[uuid.UUID]*turnLock
}

// turnLock is released from turns once nobody holds or waits for it.
type turnLock struct {
	sync.Mutex
	refs int
}

func NewService(repo Repository, assistant Assistant, transcriber Transcriber, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		repo:        repo,
		assistant:   assistant,
		transcriber: transcriber,
		now:         time.Now,
		logger:      logger,
		turns:       make(map[uuid.UUID]*turnLock),
	}
}

func (s *Service) Create(ctx context.Context, owner string, language *string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		Owner:     owner,
		Language:  language,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session if owner may see it.
func (s *Service) Get(ctx context.Context, owner string, id uuid.UUID) (*Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Owner != owner {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Service) lock(id uuid.UUID) func() {
	s.mu.Lock()
	l := s.turns[id]
	if l == nil {
		l = &turnLock{}
		s.turns[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.turns, id)
		}
		s.mu.Unlock()
	}
}

// Send runs one turn with the earlier messages as history and records both
// sides. A failed turn records nothing.
func (s *Service) Send(ctx context.Context, owner string, id uuid.UUID, text string) (Message, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.Get(ctx, owner, id)
	if err != nil {
		return Message{}, err
	}
	in := flows.ChatInput{History: sess.history(), Message: text, Language: sess.Language}
	out, err := s.assistant.Chat(ctx, in)
	if err != nil {
		return Message{}, err
	}

	now := s.now()
	reply := Message{Role: flows.RoleModel, Content: out.Reply, Timestamp: now}
	sess.Messages = append(sess.Messages,
		Message{Role: flows.RoleUser, Content: strings.TrimSpace(text), Timestamp: now},
		reply,
	)
	sess.UpdatedAt = now
	if err := s.repo.Save(ctx, sess); err != nil {
		return Message{}, fmt.Errorf("save chat session: %w", err)
	}
	s.logger.Debug("chat turn", "session", id, "messages", len(sess.Messages))
	return reply, nil
}

// SendAudio transcribes a voice message and sends the text. An empty
// transcript sends nothing.
func (s *Service) SendAudio(ctx context.Context, owner string, id uuid.UUID, audio media.DataURI) (string, *Message, error) {
	sess, err := s.Get(ctx, owner, id)
	if err != nil {
		return "", nil, err
	}
	text, err := s.transcriber.Transcribe(ctx, audio, sess.Language)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(text) == "" {
		return "", nil, nil
	}
	reply, err := s.Send(ctx, owner, id, text)
	if err != nil {
		return text, nil, err
	}
	return text, &reply, nil
}
