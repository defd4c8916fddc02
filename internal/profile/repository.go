package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"suraksha-jal/internal/kv"
)

var ErrNotFound = errors.New("profile not found")

const allProfilesKey = "profiles"

func currentKey(owner string) string  { return "profile/current/" + owner }
func languageKey(owner string) string { return "preferences/language/" + owner }

// Repository keeps every profile in one map keyed by email, plus a current
// profile slot per signed-in owner.
type Repository struct {
	store  kv.Store
	logger *slog.Logger
	mu     sync.Mutex
}

func NewRepository(store kv.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repository{store: store, logger: logger}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Repository) all(ctx context.Context) (map[string]Profile, error) {
	profiles := map[string]Profile{}
	ok, err := kv.GetJSON(ctx, r.store, allProfilesKey, &profiles, r.logger)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if !ok {
		profiles = map[string]Profile{}
	}
	return profiles, nil
}

// Get returns the current profile of email, falling back to the shared map.
func (r *Repository) Get(ctx context.Context, email string) (Profile, error) {
	email = normalizeEmail(email)
	var p Profile
	ok, err := kv.GetJSON(ctx, r.store, currentKey(email), &p, r.logger)
	if err != nil {
		return Profile{}, fmt.Errorf("load current profile: %w", err)
	}
	if ok {
		return p, nil
	}
	profiles, err := r.all(ctx)
	if err != nil {
		return Profile{}, err
	}
	p, ok = profiles[email]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// Save writes p to both the shared map and its owner's slot. The last write
// for an email wins.
func (r *Repository) Save(ctx context.Context, p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, p)
}

func (r *Repository) save(ctx context.Context, p Profile) error {
	p.Email = normalizeEmail(p.Email)
	if p.Email == "" {
		return errors.New("profile email is required")
	}
	profiles, err := r.all(ctx)
	if err != nil {
		return err
	}
	profiles[p.Email] = p
	if err := kv.PutJSON(ctx, r.store, allProfilesKey, profiles); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	if err := kv.PutJSON(ctx, r.store, currentKey(p.Email), p); err != nil {
		return fmt.Errorf("save current profile: %w", err)
	}
	return nil
}

// Seed creates a citizen profile unless one exists.
func (r *Repository) Seed(ctx context.Context, email, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.Get(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	r.logger.Info("profile created", "email", email)
	return r.save(ctx, Profile{Name: strings.TrimSpace(displayName), Email: email})
}

// Update applies patch to the profile of email.
func (r *Repository) Update(ctx context.Context, email string, patch Patch) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.Get(ctx, email)
	if err != nil {
		return Profile{}, err
	}
	p = patch.Apply(p)
	if err := r.save(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (r *Repository) IsHealthWorker(ctx context.Context, email string) (bool, error) {
	p, err := r.Get(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsHealthWorker, nil
}

// Language returns the stored UI language of owner, or "" when unset.
func (r *Repository) Language(ctx context.Context, owner string) (string, error) {
	raw, ok, err := r.store.Get(ctx, languageKey(normalizeEmail(owner)))
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

func (r *Repository) SetLanguage(ctx context.Context, owner, lang string) error {
	return r.store.Put(ctx, languageKey(normalizeEmail(owner)), []byte(lang))
}
