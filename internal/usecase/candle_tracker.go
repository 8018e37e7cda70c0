package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitos/ha_trader/internal/config"
	"github.com/vitos/ha_trader/internal/domain"
)

// Candles fetched per timing probe; only the newest matters.
const timingProbeCount = 10

var errNoPairInitialized = errors.New("no pair could initialize its candle timing")

// CandleTracker remembers the last candle seen per pair and reports which pairs have a
// new one. Only one refresh runs at a time.
type CandleTracker struct {
	broker  domain.Broker
	pairs   []config.PairConfig
	workers int
	logger  *zap.Logger

	mu      sync.Mutex
	timings map[string]*domain.CandleTiming

	updating atomic.Bool
}

func NewCandleTracker(broker domain.Broker, pairs []config.PairConfig, workers int, logger *zap.Logger) *CandleTracker {
	if workers < 1 {
		workers = 1
	}
	return &CandleTracker{
		broker:  broker,
		pairs:   pairs,
		workers: workers,
		logger:  logger,
		timings: make(map[string]*domain.CandleTiming),
	}
}

// Init records the current candle of every pair. Pairs that fail are logged and left
// untracked; it is an error only when none succeed.
func (t *CandleTracker) Init(ctx context.Context) error {
	for _, p := range t.pairs {
		last, err := t.latestCandleTime(ctx, p)
		if err != nil {
			t.logger.Error("Could not initialize candle timing", zap.String("pair", p.Pair), zap.Error(err))
			continue
		}
		t.mu.Lock()
		t.timings[p.Pair] = &domain.CandleTiming{
			Pair:          p.Pair,
			Granularity:   p.Granularity.String(),
			LastTime:      last,
			CompletedOnly: p.WaitsForCompletion(),
		}
		t.mu.Unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.timings) == 0 {
		return errNoPairInitialized
	}
	return nil
}

// UpdateTimings polls every tracked pair and returns those with a new candle. A call made
// while another refresh is running returns nil at once.
func (t *CandleTracker) UpdateTimings(ctx context.Context) []string {
	if !t.updating.CompareAndSwap(false, true) {
		t.logger.Debug("Timing refresh already running, skipping")
		return nil
	}
	defer t.updating.Store(false)

	var (
		readyMu sync.Mutex
		ready   []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for _, p := range t.pairs {
		g.Go(func() error {
			if t.refresh(gctx, p) {
				readyMu.Lock()
				ready = append(ready, p.Pair)
				readyMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(ready)
	if len(ready) > 0 {
		t.logger.Info("New candles", zap.Strings("pairs", ready))
	}
	return ready
}

func (t *CandleTracker) refresh(ctx context.Context, p config.PairConfig) bool {
	t.mu.Lock()
	timing, ok := t.timings[p.Pair]
	t.mu.Unlock()
	if !ok {
		return false
	}

	current, err := t.latestCandleTime(ctx, p)
	if err != nil {
		t.logger.Error("Unable to get candle", zap.String("pair", p.Pair), zap.Error(err))
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	timing.IsReady = false
	if !timing.CompletedOnly || current.After(timing.LastTime) {
		timing.IsReady = true
		if current.After(timing.LastTime) {
			timing.LastTime = current
		}
	}
	return timing.IsReady
}

func (t *CandleTracker) latestCandleTime(ctx context.Context, p config.PairConfig) (time.Time, error) {
	candles, err := t.broker.GetCandles(ctx, p.Pair, p.Granularity, timingProbeCount, p.WaitsForCompletion())
	if err != nil {
		return time.Time{}, err
	}
	if len(candles) == 0 {
		return time.Time{}, fmt.Errorf("%s: %w", p.Pair, domain.ErrNoData)
	}
	return candles[len(candles)-1].Time, nil
}

// Timing returns a copy of a pair's timing.
func (t *CandleTracker) Timing(pair string) (domain.CandleTiming, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	timing, ok := t.timings[pair]
	if !ok {
		return domain.CandleTiming{}, false
	}
	return *timing, true
}

// Timings returns a copy of every tracked timing, ordered by pair.
func (t *CandleTracker) Timings() []domain.CandleTiming {
	t.mu.Lock()
	out := make([]domain.CandleTiming, 0, len(t.timings))
	for _, timing := range t.timings {
		out = append(out, *timing)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Pairs lists the tracked pairs.
func (t *CandleTracker) Pairs() []string {
	timings := t.Timings()
	out := make([]string, len(timings))
	for i, timing := range timings {
		out[i] = timing.Pair
	}
	return out
}
