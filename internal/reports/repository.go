package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"suraksha-jal/internal/kv"
)

const storeKey = "reports"

var ErrIDConflict = errors.New("report id is already taken")

// Repository persists submitted and generated reports as one JSON array.
// Reports are only ever appended.
type Repository struct {
	store  kv.Store
	logger *slog.Logger
	mu     sync.Mutex
}

func NewRepository(store kv.Store, logger *slog.Logger) *Repository {
	return &Repository{store: store, logger: logger}
}

func (r *Repository) List(ctx context.Context) ([]Report, error) {
	var stored []Report
	ok, err := kv.GetJSON(ctx, r.store, storeKey, &stored, r.logger)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return stored, nil
}

// Append stores all of reports or none: an id that is already stored, or
// repeated within the batch, fails with ErrIDConflict.
func (r *Repository) Append(ctx context.Context, reports ...Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.List(ctx)
	if err != nil {
		return err
	}
	taken := lo.KeyBy(stored, func(rep Report) int64 { return rep.ID })
	for _, rep := range reports {
		if _, ok := taken[rep.ID]; ok {
			return fmt.Errorf("%w: %d", ErrIDConflict, rep.ID)
		}
		taken[rep.ID] = rep
	}
	return r.save(ctx, stored, reports)
}

// AppendNext stores rep, moving its id past the largest stored id when
// needed, and returns the report as stored.
func (r *Repository) AppendNext(ctx context.Context, rep Report) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.List(ctx)
	if err != nil {
		return Report{}, err
	}
	maxID := lo.Max(lo.Map(stored, func(s Report, _ int) int64 { return s.ID }))
	if len(stored) > 0 && rep.ID <= maxID {
		rep.ID = maxID + 1
	}
	if err := r.save(ctx, stored, []Report{rep}); err != nil {
		return Report{}, err
	}
	return rep, nil
}

func (r *Repository) save(ctx context.Context, stored, added []Report) error {
	if err := kv.PutJSON(ctx, r.store, storeKey, Merge(stored, added)); err != nil {
		return fmt.Errorf("save reports: %w", err)
	}
	return nil
}
