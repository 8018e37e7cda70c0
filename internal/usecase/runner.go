package usecase

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

// Runner is the single coordinator: it polls candle timings on a fixed period and runs
// the pairs that have a new candle.
type Runner struct {
	tracker *CandleTracker
	trader  *TraderService
	period  time.Duration
	logger  *zap.Logger
}

func NewRunner(tracker *CandleTracker, trader *TraderService, period time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		tracker: tracker,
		trader:  trader,
		period:  period,
		logger:  logger,
	}
}

// Run initializes timings, processes every pair once, then ticks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.tracker.Init(ctx); err != nil {
		return err
	}
	r.logger.Info("Starting main loop", zap.Strings("pairs", r.tracker.Pairs()), zap.Duration("period", r.period))
	r.process(ctx, r.tracker.Pairs())

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Main loop stopped")
			return nil
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick refreshes timings and processes the pairs with new candles.
func (r *Runner) Tick(ctx context.Context) []Result {
	pairs := r.tracker.UpdateTimings(ctx)
	if len(pairs) == 0 {
		return nil
	}
	return r.process(ctx, pairs)
}

func (r *Runner) process(ctx context.Context, pairs []string) []Result {
	r.logger.Info("Processing pairs", zap.Strings("pairs", pairs))
	results := r.trader.ProcessPairs(ctx, pairs)

	var err error
	traded, rejected := 0, 0
	for _, res := range results {
		err = multierr.Append(err, res.Err)
		switch {
		case res.Decision == nil:
		case res.Decision.Rejected():
			rejected++
		case res.Decision.Action != domain.ActionNone:
			traded++
		}
	}
	r.logger.Info("Tick finished",
		zap.Int("pairs", len(pairs)),
		zap.Int("traded", traded),
		zap.Int("rejected", rejected),
	)
	if err != nil {
		r.logger.Warn("Tick finished with errors",
			zap.Int("failed", len(multierr.Errors(err))),
			zap.Int("pairs", len(pairs)),
			zap.Error(err),
		)
	}
	return results
}
