package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/media"
	"suraksha-jal/internal/profile"
)

var ErrSessionNotFound = errors.New("registration not found")

const sessionTTL = 30 * time.Minute

type Accounts interface {
	Register(ctx context.Context, email, password, displayName string) (auth.Session, error)
	Delete(ctx context.Context, email string) error
}

type Profiles interface {
	Save(ctx context.Context, p profile.Profile) error
}

type Session struct {
	ID        uuid.UUID
	Capture   *FaceCapture
	CreatedAt time.Time
}

type Service struct {
	verifier FaceVerifier
	accounts Accounts
	profiles Profiles
	photos   media.PhotoStore
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewService(verifier FaceVerifier, accounts Accounts, profiles Profiles, photos media.PhotoStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		verifier: verifier,
		accounts: accounts,
		profiles: profiles,
		photos:   photos,
		now:      time.Now,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (s *Service) Start() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	sess := &Session{ID: uuid.New(), Capture: NewFaceCapture(s.verifier), CreatedAt: s.now()}
	s.sessions[sess.ID] = sess
	s.logger.Debug("registration started", "id", sess.ID)
	return sess
}

// sweep drops abandoned sessions. Callers hold s.mu.
func (s *Service) sweep() {
	cutoff := s.now().Add(-sessionTTL)
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

func (s *Service) Get(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.CreatedAt.Before(s.now().Add(-sessionTTL)) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) Cancel(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

type Details struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Address  string `json:"address,omitempty"`
}

type Result struct {
	Session auth.Session    `json:"session"`
	Profile profile.Profile `json:"profile"`
}

// Complete creates the account and health worker profile from a session
// whose capture is verified. The photo is stored before the account is
// created, and the account is removed again when the profile cannot be
// saved, so a failed attempt can be retried with the same email.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, d Details) (Result, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Result{}, err
	}
	photo, ok := sess.Capture.VerifiedPhoto()
	if !ok {
		return Result{}, ErrNotVerified
	}
	uri, err := media.ParseDataURI(photo)
	if err != nil {
		return Result{}, err
	}

	email, err := auth.NormalizeEmail(d.Email)
	if err != nil {
		return Result{}, err
	}
	photoURL, err := s.photos.Save(ctx, "health-workers/"+email, uri)
	if err != nil {
		return Result{}, fmt.Errorf("store face photo: %w", err)
	}
	authSession, err := s.accounts.Register(ctx, email, d.Password, d.Name)
	if err != nil {
		return Result{}, err
	}
	p := profile.Profile{
		Name:           strings.TrimSpace(d.Name),
		Email:          authSession.Email,
		Address:        strings.TrimSpace(d.Address),
		PhotoURL:       photoURL,
		IsHealthWorker: true,
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		if derr := s.accounts.Delete(ctx, authSession.Email); derr != nil {
			s.logger.Error("roll back account failed", "email", authSession.Email, "err", derr)
		}
		return Result{}, fmt.Errorf("save profile: %w", err)
	}

	s.Cancel(id)
	s.logger.Info("health worker registered", "email", p.Email)
	return Result{Session: authSession, Profile: p}, nil
}
