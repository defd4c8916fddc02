package registration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/kv"
	"suraksha-jal/internal/media"
	"suraksha-jal/internal/profile"
)

const face = "data:image/jpeg;base64,/9j/4AAQSkZJRg=="

type verifierFunc func(ctx context.Context, in flows.FaceInput) (flows.FaceOutput, error)

func (f verifierFunc) VerifyFace(ctx context.Context, in flows.FaceInput) (flows.FaceOutput, error) {
	return f(ctx, in)
}

func verdict(valid bool, reason string) FaceVerifier {
	return verifierFunc(func(context.Context, flows.FaceInput) (flows.FaceOutput, error) {
		return flows.FaceOutput{IsValid: valid, Reason: reason}, nil
	})
}

func TestCaptureRequiresPermission(t *testing.T) {
	c := NewFaceCapture(verdict(true, ""))
	if _, err := c.Capture(context.Background(), face); !errors.Is(err, ErrPermissionRequired) {
		t.Fatalf("expected ErrPermissionRequired, got %v", err)
	}
	c.SetPermission(false)
	if _, err := c.Capture(context.Background(), face); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if c.Status().State != StateIdle {
		t.Fatalf("denied capture must not change state")
	}
}

func TestCaptureValidExposesPhoto(t *testing.T) {
	c := NewFaceCapture(verdict(true, "ignored"))
	c.SetPermission(true)
	status, err := c.Capture(context.Background(), face)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if status.State != StateValid || status.Reason != "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if photo, ok := c.VerifiedPhoto(); !ok || photo != face {
		t.Fatalf("expected verified photo")
	}
}

func TestCaptureRejectedClearsPhoto(t *testing.T) {
	c := NewFaceCapture(verdict(false, "Photo of a screen"))
	c.SetPermission(true)
	status, err := c.Capture(context.Background(), face)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if status.State != StateInvalid || status.Reason != "Photo of a screen" {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, ok := c.VerifiedPhoto(); ok {
		t.Fatalf("invalid capture must not expose a photo")
	}
	if c.photo != "" {
		t.Fatalf("invalid state must clear the cached capture")
	}
}

func TestCaptureBackendFailureIsInvalid(t *testing.T) {
	c := NewFaceCapture(verifierFunc(func(context.Context, flows.FaceInput) (flows.FaceOutput, error) {
		return flows.FaceOutput{}, genai.ErrOverloaded
	}))
	c.SetPermission(true)
	status, err := c.Capture(context.Background(), face)
	if !errors.Is(err, genai.ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}
	if status.State != StateInvalid || status.Reason == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, ok := c.VerifiedPhoto(); ok {
		t.Fatalf("failed check must not expose a photo")
	}
}

func TestRetakeAfterValidRequiresNewVerification(t *testing.T) {
	valid := true
	c := NewFaceCapture(verifierFunc(func(context.Context, flows.FaceInput) (flows.FaceOutput, error) {
		return flows.FaceOutput{IsValid: valid}, nil
	}))
	c.SetPermission(true)
	_, _ = c.Capture(context.Background(), face)
	valid = false
	_, _ = c.Capture(context.Background(), face)
	if _, ok := c.VerifiedPhoto(); ok {
		t.Fatalf("rejected retake must drop the earlier verified photo")
	}
}

func TestCaptureRejectsNonDataURI(t *testing.T) {
	c := NewFaceCapture(verdict(true, ""))
	c.SetPermission(true)
	if _, err := c.Capture(context.Background(), "https://example.org/face.jpg"); !errors.Is(err, flows.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if c.Status().State != StateIdle {
		t.Fatalf("state must not change")
	}
}

func TestDenyingPermissionDropsCapture(t *testing.T) {
	c := NewFaceCapture(verdict(true, ""))
	c.SetPermission(true)
	_, _ = c.Capture(context.Background(), face)
	status := c.SetPermission(false)
	if status.State != StateIdle || status.Permission != PermissionDenied {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, ok := c.VerifiedPhoto(); ok {
		t.Fatalf("expected capture dropped")
	}
}

type fixture struct {
	router   http.Handler
	svc      *Service
	profiles *profile.Repository
}

func newFixture(t *testing.T, v FaceVerifier) fixture {
	t.Helper()
	store := kv.NewMemoryStore()
	provider, err := auth.NewProvider(store, auth.Config{Secret: "registration-test-secret"}, nil)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	profiles := profile.NewRepository(store, nil)
	svc := NewService(v, provider, profiles, media.InlineStore{}, nil)
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(svc))
	return fixture{router: r, svc: svc, profiles: profiles}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRegistrationFlowEndToEnd(t *testing.T) {
	f := newFixture(t, verdict(true, ""))

	rec := f.do(t, http.MethodPost, "/health-workers/registrations", "")
	var created sessionResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if rec.Code != http.StatusCreated || created.State != StateIdle {
		t.Fatalf("unexpected create response %d %s", rec.Code, rec.Body.String())
	}
	base := "/health-workers/registrations/" + created.ID.String()

	details := `{"name":"Asha Devi","email":"asha@example.org","password":"secret1","address":"Majuli"}`
	if rec := f.do(t, http.MethodPost, base+"/submit", details); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before capture, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, base+"/capture", `{"photoDataUri":"`+face+`"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 without permission, got %d", rec.Code)
	}
	f.do(t, http.MethodPost, base+"/permission", `{"granted":true}`)
	if rec := f.do(t, http.MethodPost, base+"/capture", `{"photoDataUri":"`+face+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for capture, got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, base+"/submit", details)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var res Result
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Session.Token == "" || !res.Profile.IsHealthWorker || res.Profile.PhotoURL != face {
		t.Fatalf("unexpected result %+v", res)
	}
	ok, _ := f.profiles.IsHealthWorker(context.Background(), "asha@example.org")
	if !ok {
		t.Fatalf("expected stored health worker profile")
	}
	if rec := f.do(t, http.MethodGet, base, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected session removed, got %d", rec.Code)
	}
}

func TestSubmitMapsAuthErrors(t *testing.T) {
	f := newFixture(t, verdict(true, ""))
	sess := f.svc.Start()
	sess.Capture.SetPermission(true)
	_, _ = sess.Capture.Capture(context.Background(), face)

	rec := f.do(t, http.MethodPost, "/health-workers/registrations/"+sess.ID.String()+"/submit",
		`{"name":"Ravi","email":"ravi@example.org","password":"123"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "weak-password") {
		t.Fatalf("expected weak-password 400, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCaptureDeniedReturnsForbidden(t *testing.T) {
	f := newFixture(t, verdict(true, ""))
	sess := f.svc.Start()
	base := "/health-workers/registrations/" + sess.ID.String()
	f.do(t, http.MethodPost, base+"/permission", `{"granted":false}`)
	if rec := f.do(t, http.MethodPost, base+"/capture", `{"photoDataUri":"`+face+`"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, base, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

type flakyPhotos struct{ fail bool }

func (f *flakyPhotos) Save(ctx context.Context, key string, photo media.DataURI) (string, error) {
	if f.fail {
		return "", errors.New("bucket unavailable")
	}
	return media.InlineStore{}.Save(ctx, key, photo)
}

type flakyProfiles struct {
	fail  bool
	saved []profile.Profile
}

func (f *flakyProfiles) Save(_ context.Context, p profile.Profile) error {
	if f.fail {
		return errors.New("store unavailable")
	}
	f.saved = append(f.saved, p)
	return nil
}

func verifiedSession(t *testing.T, svc *Service) *Session {
	t.Helper()
	sess := svc.Start()
	sess.Capture.SetPermission(true)
	if _, err := sess.Capture.Capture(context.Background(), face); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	return sess
}

func TestCompleteRetriesAfterStorageFailures(t *testing.T) {
	provider, err := auth.NewProvider(kv.NewMemoryStore(), auth.Config{Secret: "registration-test-secret"}, nil)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	photos := &flakyPhotos{fail: true}
	profiles := &flakyProfiles{}
	svc := NewService(verdict(true, ""), provider, profiles, photos, nil)
	ctx := context.Background()
	d := Details{Name: "Asha Devi", Email: "Asha@example.org", Password: "secret1"}

	sess := verifiedSession(t, svc)
	if _, err := svc.Complete(ctx, sess.ID, d); err == nil {
		t.Fatalf("expected photo storage error")
	}
	if _, err := provider.SignIn(ctx, "asha@example.org", "secret1"); err == nil {
		t.Fatalf("account must not exist when the photo was not stored")
	}

	photos.fail, profiles.fail = false, true
	if _, err := svc.Complete(ctx, sess.ID, d); err == nil {
		t.Fatalf("expected profile storage error")
	}
	if _, err := provider.SignIn(ctx, "asha@example.org", "secret1"); err == nil {
		t.Fatalf("account must be removed when the profile was not saved")
	}

	profiles.fail = false
	res, err := svc.Complete(ctx, sess.ID, d)
	if err != nil {
		t.Fatalf("Complete() retry error = %v", err)
	}
	if res.Profile.Email != "asha@example.org" || len(profiles.saved) != 1 || !profiles.saved[0].IsHealthWorker {
		t.Fatalf("unexpected result %+v", res)
	}
}
