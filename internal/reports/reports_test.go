package reports

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

	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/kv"
	"suraksha-jal/internal/notify"
)

var testNow = time.Date(2026, 10, 18, 11, 0, 0, 0, time.UTC)

type workers map[string]bool

func (w workers) IsHealthWorker(_ context.Context, email string) (bool, error) { return w[email], nil }

type fakeAlerts struct {
	messages []string
	docs     []string
	err      error
}

func (f *fakeAlerts) SendMessage(_ context.Context, _ int64, text string) error {
	f.messages = append(f.messages, text)
	return f.err
}

func (f *fakeAlerts) SendDocument(_ context.Context, _ int64, _ []byte, name string) error {
	f.docs = append(f.docs, name)
	return f.err
}

func newTestService(t *testing.T, gen genai.Generator, alerts *fakeAlerts, notes Broadcaster) *Service {
	t.Helper()
	fl := flows.NewService(gen, nil).WithClock(func() time.Time { return testNow })
	var a Alerter
	if alerts != nil {
		a = alerts
	}
	svc := NewService(NewRepository(kv.NewMemoryStore(), nil), fl, workers{"asha@example.org": true}, a, notes,
		Config{AlertChatID: 99}, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestMergeKeepsFirstOccurrence(t *testing.T) {
	stored := []Report{{ID: 1, Disease: "Cholera", Cases: 3, Date: "2026-10-10", Source: SourceCommunity}}
	generated := []Report{
		{ID: 1, Disease: "Typhoid", Cases: 9, Date: "2026-10-17", Source: SourceAI},
		{ID: 2, Disease: "Jaundice", Cases: 2, Date: "2026-10-16", Source: SourceAI},
	}
	merged := Merge(stored, generated)
	if len(merged) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(merged))
	}
	for _, r := range merged {
		if r.ID == 1 && r.Disease != "Cholera" {
			t.Fatalf("stored report must win on duplicate id, got %+v", r)
		}
	}
}

func TestSortPutsHealthWorkersFirst(t *testing.T) {
	reports := []Report{
		{ID: 1, Source: SourceCommunity, Date: "2026-10-18"},
		{ID: 2, Source: SourceHealthWorker, Date: "2026-10-17"},
	}
	Sort(reports)
	if reports[0].ID != 2 || reports[1].ID != 1 {
		t.Fatalf("expected health worker report first, got %+v", reports)
	}
}

func TestSortIsStableWithinSourceAndDate(t *testing.T) {
	reports := []Report{
		{ID: 3, Source: SourceSystem, Date: "2026-10-15"},
		{ID: 4, Source: SourceAI, Date: "2026-10-18"},
		{ID: 5, Source: SourceCommunity, Date: "2026-10-15"},
		{ID: 6, Source: SourceHealthWorker, Date: "2026-10-01"},
	}
	Sort(reports)
	got := []int64{reports[0].ID, reports[1].ID, reports[2].ID, reports[3].ID}
	want := []int64{6, 4, 3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestSubmitRequiresHealthWorker(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	_, err := svc.Submit(context.Background(), "citizen@example.org", Submission{Disease: "Cholera", Location: "Tezpur", Cases: 2})
	if !errors.Is(err, ErrNotHealthWorker) {
		t.Fatalf("expected ErrNotHealthWorker, got %v", err)
	}
}

func TestSubmitValidatesAndStores(t *testing.T) {
	alerts := &fakeAlerts{}
	notes := notify.NewRegistry(4, nil)
	sub := notes.Subscribe("")
	defer sub.Close()
	svc := newTestService(t, nil, alerts, notes)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "asha@example.org", Submission{Disease: " ", Location: "Tezpur", Cases: 0})
	if !errors.Is(err, flows.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	report, err := svc.Submit(ctx, "asha@example.org", Submission{Disease: "Cholera", Location: "Tezpur", Cases: 5})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if report.Source != SourceHealthWorker || report.Date != "2026-10-18" || report.ID != testNow.UnixMilli() {
		t.Fatalf("unexpected report %+v", report)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list[0].ID != report.ID || len(list) != len(Mock(testNow))+1 {
		t.Fatalf("expected submitted report first among %d, got %+v", len(list), list[0])
	}
	if len(alerts.messages) != 1 || !strings.Contains(alerts.messages[0], "Cholera") {
		t.Fatalf("expected telegram alert, got %v", alerts.messages)
	}
	select {
	case n := <-sub.C:
		if n.Title != "New outbreak report" {
			t.Fatalf("unexpected notification %+v", n)
		}
	default:
		t.Fatalf("expected broadcast notification")
	}
}

func TestSubmitSurvivesAlertFailure(t *testing.T) {
	svc := newTestService(t, nil, &fakeAlerts{err: errors.New("telegram down")}, nil)
	if _, err := svc.Submit(context.Background(), "asha@example.org", Submission{Disease: "Typhoid", Location: "Jorhat", Cases: 1}); err != nil {
		t.Fatalf("alert failure must not fail the submission: %v", err)
	}
}

func TestGenerateAppendsToStore(t *testing.T) {
	gen := genai.GeneratorFunc(func(context.Context, genai.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"reports":[
			{"disease":"Cholera","location":"Goalpara","cases":8,"source":"AI"},
			{"disease":"Typhoid","location":"Nagaon","cases":3,"source":"AI"}]}`), nil
	})
	svc := newTestService(t, gen, nil, nil)
	generated, err := svc.Generate(context.Background(), flows.GenerateReportsInput{Count: 2})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	stored, _ := svc.repo.List(context.Background())
	if len(generated) != 2 || len(stored) != 2 {
		t.Fatalf("expected 2 generated and stored, got %d and %d", len(generated), len(stored))
	}
	if generated[1].Date != "2026-10-17" {
		t.Fatalf("expected second report dated yesterday, got %s", generated[1].Date)
	}
}

func TestSubmitsInSameMillisecondGetDistinctIDs(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	ctx := context.Background()
	first, err := svc.Submit(ctx, "asha@example.org", Submission{Disease: "Cholera", Location: "Tezpur", Cases: 5})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := svc.Submit(ctx, "asha@example.org", Submission{Disease: "Hepatitis A", Location: "Dibrugarh", Cases: 2})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if second.ID != first.ID+1 {
		t.Fatalf("expected id %d, got %d", first.ID+1, second.ID)
	}
	stored, _ := svc.repo.List(ctx)
	if len(stored) != 2 {
		t.Fatalf("expected both reports stored, got %d", len(stored))
	}
}

func TestGenerateIDConflictStoresNothing(t *testing.T) {
	gen := genai.GeneratorFunc(func(context.Context, genai.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"reports":[
			{"disease":"Cholera","location":"Goalpara","cases":8,"source":"AI"},
			{"disease":"Typhoid","location":"Nagaon","cases":3,"source":"AI"}]}`), nil
	})
	svc := newTestService(t, gen, nil, nil)
	ctx := context.Background()
	if _, err := svc.Generate(ctx, flows.GenerateReportsInput{Count: 2}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := svc.Generate(ctx, flows.GenerateReportsInput{Count: 2}); !errors.Is(err, ErrIDConflict) {
		t.Fatalf("expected ErrIDConflict, got %v", err)
	}
	stored, _ := svc.repo.List(ctx)
	if len(stored) != 2 {
		t.Fatalf("expected only the first batch stored, got %d", len(stored))
	}

	rec := httptest.NewRecorder()
	NewHandler(svc).Generate(rec, httptest.NewRequest(http.MethodPost, "/api/reports/generate", strings.NewReader(`{"count":2}`)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestAppendRejectsDuplicateIDsInBatch(t *testing.T) {
	repo := NewRepository(kv.NewMemoryStore(), nil)
	err := repo.Append(context.Background(), Report{ID: 7, Disease: "a"}, Report{ID: 7, Disease: "b"})
	if !errors.Is(err, ErrIDConflict) {
		t.Fatalf("expected ErrIDConflict, got %v", err)
	}
	if stored, _ := repo.List(context.Background()); len(stored) != 0 {
		t.Fatalf("expected nothing stored, got %+v", stored)
	}
}

func TestSummarizeSendsCurrentList(t *testing.T) {
	var prompt string
	gen := genai.GeneratorFunc(func(_ context.Context, req genai.Request) (json.RawMessage, error) {
		prompt = req.Prompt.Text()
		return json.RawMessage(`{"overview":"Stable.","insights":[]}`), nil
	})
	svc := newTestService(t, gen, nil, nil)
	lang := "Assamese"
	out, err := svc.Summarize(context.Background(), &lang)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if out.Overview != "Stable." || !strings.Contains(prompt, "Majuli") || !strings.Contains(prompt, "Respond in Assamese") {
		t.Fatalf("unexpected summary %+v for prompt %q", out, prompt)
	}
}

func TestExportPDFWithoutFontFails(t *testing.T) {
	svc := newTestService(t, nil, nil, nil)
	svc.cfg.FontPaths = []string{"/nonexistent/font.ttf"}
	if _, err := svc.ExportPDF(Mock(testNow)); err == nil {
		t.Fatalf("expected font error")
	}
}

func TestHandlerSubmitForbiddenForCitizens(t *testing.T) {
	h := NewHandler(newTestService(t, nil, nil, nil))
	body, _ := json.Marshal(Submission{Disease: "Cholera", Location: "Tezpur", Cases: 1})
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/api/reports", bytes.NewReader(body)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandlerListReturnsMergedFeed(t *testing.T) {
	h := NewHandler(newTestService(t, nil, nil, nil))
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	var resp struct {
		Reports []Report `json:"reports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Reports) != len(Mock(testNow)) || resp.Reports[0].Date != "2026-10-18" {
		t.Fatalf("unexpected feed %+v", resp.Reports)
	}
}
