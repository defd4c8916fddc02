package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/notify"
	"suraksha-jal/internal/schema"
)

var ErrNotHealthWorker = errors.New("only registered health workers can submit reports")

// HealthWorkers tells whether an account belongs to a health worker.
type HealthWorkers interface {
	IsHealthWorker(ctx context.Context, email string) (bool, error)
}

// Alerter forwards submissions and exports to the district health officer.
type Alerter interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, data []byte, fileName string) error
}

type Broadcaster interface {
	Broadcast(n notify.Notification)
}

type Config struct {
	AlertChatID int64
	FontPaths   []string
}

type Service struct {
	repo    *Repository
	flows   *flows.Service
	workers HealthWorkers
	alerts  Alerter
	notes   Broadcaster
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

func NewService(repo *Repository, fl *flows.Service, workers HealthWorkers, alerts Alerter, notes Broadcaster, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(cfg.FontPaths) == 0 {
		cfg.FontPaths = defaultFontPaths
	}
	return &Service{
		repo:    repo,
		flows:   fl,
		workers: workers,
		alerts:  alerts,
		notes:   notes,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// List returns stored reports merged with the seeded feed, stored first.
func (s *Service) List(ctx context.Context) ([]Report, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return Merge(stored, Mock(s.now())), nil
}

type Submission struct {
	Disease  string `json:"disease"`
	Location string `json:"location"`
	Cases    int    `json:"cases"`
}

var submissionSchema = schema.Object("health worker report",
	schema.Required("disease", schema.Text("disease")),
	schema.Required("location", schema.Text("location")),
	schema.Required("cases", schema.Integer("cases").Min(1)),
)

// Submit records a health worker report dated today.
func (s *Service) Submit(ctx context.Context, email string, sub Submission) (Report, error) {
	ok, err := s.workers.IsHealthWorker(ctx, email)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{}, ErrNotHealthWorker
	}
	sub.Disease = strings.TrimSpace(sub.Disease)
	sub.Location = strings.TrimSpace(sub.Location)
	if err := submissionSchema.ValidateValue(sub); err != nil {
		return Report{}, fmt.Errorf("%w: %w", flows.ErrInvalidInput, err)
	}

	now := s.now()
	// Ids start at the submission time; AppendNext keeps them unique.
	report := Report{
		ID:       now.UnixMilli(),
		Disease:  sub.Disease,
		Location: sub.Location,
		Cases:    sub.Cases,
		Date:     now.Format(time.DateOnly),
		Source:   SourceHealthWorker,
	}
	report, err = s.repo.AppendNext(ctx, report)
	if err != nil {
		return Report{}, err
	}
	s.logger.Info("report submitted", "id", report.ID, "disease", report.Disease, "by", email)

	if s.notes != nil {
		s.notes.Broadcast(notify.Notification{
			Level:   notify.LevelInfo,
			Title:   "New outbreak report",
			Message: fmt.Sprintf("%s in %s: %d cases", report.Disease, report.Location, report.Cases),
		})
	}
	s.alert(ctx, report, email)
	return report, nil
}

// alert is best effort; a failed alert never fails the submission.
func (s *Service) alert(ctx context.Context, r Report, email string) {
	if s.alerts == nil || s.cfg.AlertChatID == 0 {
		return
	}
	text := fmt.Sprintf("New outbreak report\nDisease: %s\nLocation: %s\nCases: %d\nDate: %s\nReported by: %s",
		r.Disease, r.Location, r.Cases, r.Date, email)
	if err := s.alerts.SendMessage(ctx, s.cfg.AlertChatID, text); err != nil {
		s.logger.Warn("telegram alert failed", "id", r.ID, "err", err)
	}
}

// Generate asks the backend for mock reports and stores them. Ids that
// collide with stored reports fail with ErrIDConflict and store nothing.
func (s *Service) Generate(ctx context.Context, in flows.GenerateReportsInput) ([]Report, error) {
	generated, err := s.flows.GenerateReports(ctx, in)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0, len(generated))
	for _, g := range generated {
		out = append(out, fromGenerated(g))
	}
	if err := s.repo.Append(ctx, out...); err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize runs the outbreak summary over the current list.
func (s *Service) Summarize(ctx context.Context, language *string) (flows.OutbreakSummaryOutput, error) {
	list, err := s.List(ctx)
	if err != nil {
		return flows.OutbreakSummaryOutput{}, err
	}
	in := flows.OutbreakSummaryInput{Language: language}
	for _, r := range list {
		in.Reports = append(in.Reports, r.generated())
	}
	return s.flows.SummarizeOutbreaks(ctx, in)
}

// SendDigest renders the current list as PDF and sends it to the alert chat.
func (s *Service) SendDigest(ctx context.Context) error {
	if s.alerts == nil || s.cfg.AlertChatID == 0 {
		return errors.New("telegram alerts are not configured")
	}
	list, err := s.List(ctx)
	if err != nil {
		return err
	}
	pdf, err := s.ExportPDF(list)
	if err != nil {
		return err
	}
	if err := s.alerts.SendDocument(ctx, s.cfg.AlertChatID, pdf, exportFileName(s.now())); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	s.logger.Info("report digest sent", "reports", len(list))
	return nil
}
