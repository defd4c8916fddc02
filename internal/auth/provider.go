// Package auth is the email/password identity provider and its session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"suraksha-jal/internal/kv"
)

const minPasswordLength = 6

type Config struct {
	Secret      string
	TokenTTL    time.Duration
	MaxFailures int
	Lockout     time.Duration
}

type Session struct {
	Token       string    `json:"token"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type credential struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type attempts struct {
	failures    int
	lockedUntil time.Time
}

type Provider struct {
	store  kv.Store
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	// regMu makes the credential existence check and write atomic.
	regMu sync.Mutex

	failMu   sync.Mutex
	failures map[string]*attempts
}

func NewProvider(store kv.Store, cfg Config, logger *slog.Logger) (*Provider, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth secret must be at least 16 characters")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provider{
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
		failures: make(map[string]*attempts),
	}, nil
}

func credentialKey(email string) string { return "auth/credentials/" + email }

// NormalizeEmail lower-cases and checks an account email.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", newError(CodeInvalidEmail)
	}
	return email, nil
}

func (p *Provider) Register(ctx context.Context, email, password, displayName string) (Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if len(password) < minPasswordLength {
		return Session{}, newError(CodeWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	p.regMu.Lock()
	defer p.regMu.Unlock()

	_, exists, err := p.store.Get(ctx, credentialKey(email))
	if err != nil {
		return Session{}, fmt.Errorf("lookup credential: %w", err)
	}
	if exists {
		return Session{}, newError(CodeEmailAlreadyInUse)
	}
	cred := credential{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    p.now(),
	}
	if err := kv.PutJSON(ctx, p.store, credentialKey(email), cred); err != nil {
		return Session{}, fmt.Errorf("save credential: %w", err)
	}
	p.logger.Info("account registered", "email", email)
	return p.issue(cred)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}

	if p.locked(email) {
		return Session{}, newError(CodeTooManyRequests)
	}

	var cred credential
	ok, err := kv.GetJSON(ctx, p.store, credentialKey(email), &cred, p.logger)
	if err != nil {
		return Session{}, fmt.Errorf("lookup credential: %w", err)
	}
	if !ok {
		return Session{}, newError(CodeUserNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return Session{}, p.recordFailure(email)
	}
	p.failMu.Lock()
	delete(p.failures, email)
	p.failMu.Unlock()
	return p.issue(cred)
}

// Delete removes the account for email. Deleting an unknown account is not
// an error.
func (p *Provider) Delete(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	p.regMu.Lock()
	defer p.regMu.Unlock()
	if err := p.store.Delete(ctx, credentialKey(email)); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	p.failMu.Lock()
	delete(p.failures, email)
	p.failMu.Unlock()
	p.logger.Info("account deleted", "email", email)
	return nil
}

func (p *Provider) locked(email string) bool {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	a := p.failures[email]
	return a != nil && p.now().Before(a.lockedUntil)
}

func (p *Provider) recordFailure(email string) error {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	a := p.failures[email]
	if a == nil {
		a = &attempts{}
		p.failures[email] = a
	}
	a.failures++
	if a.failures >= p.cfg.MaxFailures {
		a.failures = 0
		a.lockedUntil = p.now().Add(p.cfg.Lockout)
		p.logger.Warn("sign-in locked after repeated failures", "email", email, "until", a.lockedUntil)
		return newError(CodeTooManyRequests)
	}
	return newError(CodeWrongPassword)
}

func (p *Provider) issue(cred credential) (Session, error) {
	now := p.now()
	expires := now.Add(p.cfg.TokenTTL)
	claims := Claims{
		Name: cred.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    "suraksha-jal",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.cfg.Secret))
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, Email: cred.Email, DisplayName: cred.DisplayName, ExpiresAt: expires}, nil
}

// Verify parses a session token issued by this provider.
func (p *Provider) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(p.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("suraksha-jal"),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, errors.Join(newError(CodeInvalidCredentials), err)
	}
	return claims, nil
}
