package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mhdcoin-bot/internal/cache"
	"mhdcoin-bot/internal/ledger"
	"mhdcoin-bot/internal/models"
)

// Reporter periodically refreshes the cached leaderboard and logs the
// ledger-wide totals so operators can watch accrual without querying the
// database by hand.
type Reporter struct {
	Store    *ledger.Store
	LB       *cache.Leaderboard
	Limit    int
	Interval time.Duration
	Log      *zap.SugaredLogger
}

func NewReporter(store *ledger.Store, lb *cache.Leaderboard, limit int, interval time.Duration, log *zap.SugaredLogger) *Reporter {
	return &Reporter{
		Store:    store,
		LB:       lb,
		Limit:    limit,
		Interval: interval,
		Log:      log,
	}
}

func (r *Reporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	r.Log.Infow("stats reporter started", "interval", r.Interval)

	// Run once at start so the cache is warm before the first tick.
	r.run(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Log.Info("stats reporter stopped")
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

func (r *Reporter) run(ctx context.Context) {
	entries, err := r.Store.TopN(ctx, r.Limit)
	if err != nil {
		r.Log.Errorw("leaderboard refresh failed", "error", err)
	} else if err := r.LB.Set(ctx, r.Limit, entries); err != nil {
		r.Log.Warnw("leaderboard cache write failed", "error", err)
	}

	totals, err := r.Store.Aggregate(ctx)
	if err != nil {
		r.Log.Errorw("aggregate query failed", "error", err)
		return
	}
	r.Log.Infow("ledger totals",
		"users", totals.Users,
		"taps", totals.TotalTaps,
		"mined", models.FormatAmount(totals.TotalMined),
	)
}
