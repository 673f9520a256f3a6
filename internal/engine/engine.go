// Package engine enforces the reward rules on top of the ledger: the tap
// cooldown, the one-time referral bonus, and the read-side views the
// transport renders. It never touches storage except through the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"mhdcoin-bot/internal/cache"
	"mhdcoin-bot/internal/ledger"
	"mhdcoin-bot/internal/models"
)

// Policy holds the tunables operators adjust without touching the rules.
type Policy struct {
	Cooldown         time.Duration
	TapReward        int64 // minor units per accepted tap
	ReferralBonus    int64 // minor units per referred registration
	LeaderboardLimit int
}

type Engine struct {
	store  *ledger.Store
	lb     *cache.Leaderboard
	policy Policy
	log    *zap.SugaredLogger

	// Per-user locks linearize tap handling so two near-simultaneous taps
	// cannot both read a stale last_tap_time and both pass the cooldown.
	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

func New(store *ledger.Store, lb *cache.Leaderboard, policy Policy, log *zap.SugaredLogger) *Engine {
	return &Engine{
		store:  store,
		lb:     lb,
		policy: policy,
		log:    log,
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (e *Engine) userLock(telegramID int64) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[telegramID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[telegramID] = mu
	}
	return mu
}

// RegistrationResult is what the transport renders after /start.
type RegistrationResult struct {
	User              *models.User
	AlreadyRegistered bool
	ReferralCredited  bool
}

type RegisterParams struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	ReferralCode string // optional deep-link payload; same namespace as telegram ids
}

// Register creates the user if unseen and pays the referrer their one-time
// bonus. Re-registration is idempotent: the existing user is returned and
// no second bonus is granted. A failed bonus credit never fails the
// registration; the user must not be blocked by a secondary reward.
func (e *Engine) Register(ctx context.Context, p RegisterParams) (*RegistrationResult, error) {
	mu := e.userLock(p.TelegramID)
	mu.Lock()
	defer mu.Unlock()

	if existing, err := e.store.GetUser(ctx, p.TelegramID); err == nil {
		return &RegistrationResult{User: existing, AlreadyRegistered: true}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	referrer := e.resolveReferrer(ctx, p.TelegramID, p.ReferralCode)

	create := ledger.CreateUserParams{
		TelegramID: p.TelegramID,
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
	}
	if referrer != nil {
		create.ReferredBy = &referrer.TelegramID
	}

	var (
		user         *models.User
		credited     bool
		creditFailed bool
	)
	err := e.store.Transaction(ctx, func(tx *ledger.Store) error {
		var txErr error
		user, txErr = tx.CreateUser(ctx, create)
		if txErr != nil {
			return txErr
		}
		if referrer == nil {
			return nil
		}
		desc := fmt.Sprintf("referral bonus for inviting user %d", p.TelegramID)
		if _, txErr = tx.Credit(ctx, referrer.TelegramID, e.policy.ReferralBonus, models.TxKindReferral, desc); txErr != nil {
			creditFailed = true
			return txErr
		}
		credited = true
		return nil
	})
	if err != nil && creditFailed {
		// Creation went through inside the unit but the bonus credit did
		// not. The registration must still succeed; only the secondary
		// reward is dropped, and loudly. A create failure never takes this
		// path, so a transient error cannot silently eat the bonus.
		e.log.Warnw("referral bonus credit failed, registering without bonus",
			"user", p.TelegramID, "referrer", referrer.TelegramID, "error", err)
		if errors.Is(err, ledger.ErrNotFound) {
			// The referrer row vanished between resolution and credit;
			// referred_by must keep referencing an existing user.
			create.ReferredBy = nil
		}
		credited = false
		err = e.store.Transaction(ctx, func(tx *ledger.Store) error {
			var txErr error
			user, txErr = tx.CreateUser(ctx, create)
			return txErr
		})
	}
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			// Lost a race with another registration for the same id.
			existing, getErr := e.store.GetUser(ctx, p.TelegramID)
			if getErr != nil {
				return nil, getErr
			}
			return &RegistrationResult{User: existing, AlreadyRegistered: true}, nil
		}
		return nil, err
	}

	return &RegistrationResult{User: user, ReferralCredited: credited}, nil
}

// resolveReferrer turns a deep-link payload into a known user. Unknown,
// malformed, or self referrals resolve to nil; none of them are errors.
func (e *Engine) resolveReferrer(ctx context.Context, newUserID int64, code string) *models.User {
	if code == "" {
		return nil
	}
	referrerID, err := strconv.ParseInt(code, 10, 64)
	if err != nil || referrerID == newUserID {
		return nil
	}
	referrer, err := e.store.GetUser(ctx, referrerID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			e.log.Warnw("referrer lookup failed", "referrer", referrerID, "error", err)
		}
		return nil
	}
	return referrer
}

// TapResult reports either the updated counters or the remaining cooldown.
type TapResult struct {
	Accepted   bool
	RetryAfter time.Duration // set when rejected
	TotalTaps  int64
	TotalMined int64
}

// Tap runs the cooldown state machine for one tap event. now is supplied by
// the caller so the decision is deterministic.
func (e *Engine) Tap(ctx context.Context, telegramID int64, now time.Time) (*TapResult, error) {
	mu := e.userLock(telegramID)
	mu.Lock()
	defer mu.Unlock()

	user, err := e.store.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	if user.LastTapTime > 0 {
		elapsed := now.Unix() - user.LastTapTime
		if elapsed < int64(e.policy.Cooldown.Seconds()) {
			remaining := e.policy.Cooldown - time.Duration(elapsed)*time.Second
			return &TapResult{
				Accepted:   false,
				RetryAfter: remaining,
				TotalTaps:  user.TotalTaps,
				TotalMined: user.TotalMined,
			}, nil
		}
	}

	updated, err := e.store.RecordTap(ctx, telegramID, e.policy.TapReward, now)
	if err != nil {
		return nil, err
	}
	return &TapResult{
		Accepted:   true,
		TotalTaps:  updated.TotalTaps,
		TotalMined: updated.TotalMined,
	}, nil
}

// BalanceResult is the per-user counter pair.
type BalanceResult struct {
	TotalTaps  int64
	TotalMined int64
}

func (e *Engine) Balance(ctx context.Context, telegramID int64) (*BalanceResult, error) {
	user, err := e.store.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{TotalTaps: user.TotalTaps, TotalMined: user.TotalMined}, nil
}

// Leaderboard returns the top limit users by balance. limit <= 0 falls back
// to the configured default. Reads go through the redis snapshot when one
// is fresh; the ledger stays the source of truth.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]ledger.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = e.policy.LeaderboardLimit
	}

	if entries, ok := e.lb.Get(ctx, limit); ok {
		return entries, nil
	}

	entries, err := e.store.TopN(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := e.lb.Set(ctx, limit, entries); err != nil {
		e.log.Debugw("leaderboard cache write failed", "error", err)
	}
	return entries, nil
}

func (e *Engine) Stats(ctx context.Context) (ledger.Totals, error) {
	return e.store.Aggregate(ctx)
}

// Policy exposes the active tunables for rendering and cache refresh.
func (e *Engine) Policy() Policy {
	return e.policy
}
