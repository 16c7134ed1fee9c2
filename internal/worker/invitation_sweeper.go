package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/reviewflow/internal/domain"
	"github.com/yourorg/reviewflow/internal/observability/metrics"
)

// InvitationSweeper periodically removes invitations whose expiry has
// passed so stale tokens cannot linger and the per-email pending slot
// frees up for a re-invite.
type InvitationSweeper struct {
	invitationRepo domain.InvitationRepository
	logger         *slog.Logger
	interval       time.Duration
	maxRetries     int
}

// NewInvitationSweeper creates a new invitation sweeper
func NewInvitationSweeper(invitationRepo domain.InvitationRepository, logger *slog.Logger, interval time.Duration) *InvitationSweeper {
	return &InvitationSweeper{
		invitationRepo: invitationRepo,
		logger:         logger,
		interval:       interval,
		maxRetries:     3,
	}
}

// Start begins the sweep loop. It runs until the context is cancelled.
func (w *InvitationSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("invitation sweeper started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("invitation sweeper stopped")
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *InvitationSweeper) sweep() {
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * time.Second
			w.logger.Warn("retrying invitation sweep", slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
			time.Sleep(backoff)
		}

		removed, err := w.invitationRepo.ExpireStale(time.Now())
		if err != nil {
			w.logger.Error("invitation sweep failed", slog.String("error", err.Error()))
			continue
		}
		if removed > 0 {
			w.logger.Info("expired invitations removed", slog.Int("count", removed))
			for i := 0; i < removed; i++ {
				metrics.IncInvitations("expired")
			}
		}
		metrics.ObserveSweep("invitation_sweeper", "success")
		return
	}
	metrics.ObserveSweep("invitation_sweeper", "error")
}
