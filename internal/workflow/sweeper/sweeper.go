// Package sweeper auto-accepts observations whose show-cause deadline lapsed
// without an agency response. It runs from a periodic ticker or from the
// vigilctl sweep command; both paths share Run.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/workflow/metrics"
	"vigil/internal/workflow/models"
	"vigil/pkg/requestcontext"
	"vigil/pkg/sentinel"
)

// Store is the persistence subset the sweep needs.
type Store interface {
	ListDueNotices(ctx context.Context, now time.Time, limit int) ([]*models.ShowCauseNotice, error)
	ListNoticeObservations(ctx context.Context, noticeID uuid.UUID) ([]*models.Observation, error)
	ResolveObservation(ctx context.Context, noticeID, observationID uuid.UUID, outcome models.ObservationStatus, now time.Time) (claimed bool, err error)
}

// Result summarizes one sweep pass.
type Result struct {
	NoticesScanned int
	AutoAccepted   int
	Skipped        int // observations already resolved when the sweep got there
}

type Sweeper struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	limit   int
}

func New(st Store, m *metrics.Metrics, logger *slog.Logger, limit int) *Sweeper {
	if limit < 1 {
		limit = 100
	}
	return &Sweeper{store: st, metrics: m, logger: logger, limit: limit}
}

// Run performs one sweep pass. Safe to run concurrently with admin
// resolutions and with itself: each flip is a conditional claim on the
// PENDING state, so an observation resolved between listing and claiming is
// counted as skipped, never overwritten. Sweeping never touches notice
// status; closure stays an explicit admin action.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	now := requestcontext.Now(ctx).UTC()

	var res Result
	notices, err := s.store.ListDueNotices(ctx, now, s.limit)
	if err != nil {
		return res, err
	}
	res.NoticesScanned = len(notices)

	for _, n := range notices {
		if err := s.sweepNotice(ctx, n, now, &res); err != nil {
			return res, err
		}
	}

	s.metrics.ObserveSweepDuration(time.Since(start).Seconds())
	if s.logger != nil {
		s.logger.InfoContext(ctx, "deadline sweep finished",
			"notices_scanned", res.NoticesScanned,
			"auto_accepted", res.AutoAccepted,
			"skipped", res.Skipped,
		)
	}
	return res, nil
}

func (s *Sweeper) sweepNotice(ctx context.Context, n *models.ShowCauseNotice, now time.Time, res *Result) error {
	observations, err := s.store.ListNoticeObservations(ctx, n.ID)
	if err != nil {
		return err
	}
	for _, o := range observations {
		if o.Status != models.ObservationPending {
			continue
		}
		claimed, err := s.store.ResolveObservation(ctx, n.ID, o.ID, models.ObservationAutoAccepted, now)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// Unlinked since listing; nothing to do.
				continue
			}
			return err
		}
		if !claimed {
			// Someone resolved it between our read and the claim.
			res.Skipped++
			s.metrics.IncSweepClaimsMissed()
			continue
		}
		res.AutoAccepted++
		s.metrics.IncAutoAccepted()
	}
	return nil
}

// RunEvery sweeps on a fixed interval until ctx is cancelled. Errors are
// logged and the loop keeps going; a transiently broken database should not
// kill the sweep for good.
func (s *Sweeper) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "deadline sweep failed", "error", err)
			}
		}
	}
}
