// Package ledger owns the users and transactions tables. All balance
// mutations go through its atomic operations; callers never see a counter
// updated without its matching transaction row.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mhdcoin-bot/internal/models"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

type Store struct {
	db *gorm.DB
}

// lockForUpdate takes a pessimistic lock on the rows the query selects.
// sqlite has a single writer and rejects FOR UPDATE, so the clause is only
// emitted on engines that support it.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a store bound to a single database
// transaction. Returning an error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", telegramID, err)
	}
	return &user, nil
}

type CreateUserParams struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	ReferredBy *int64
}

// CreateUser inserts a new user row. The referral code is the decimal
// telegram id, matching the deep-link payload users share. It does not
// grant any referral bonus; the engine composes that via Credit.
func (s *Store) CreateUser(ctx context.Context, p CreateUserParams) (*models.User, error) {
	user := models.User{
		TelegramID:   p.TelegramID,
		Username:     p.Username,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		ReferralCode: strconv.FormatInt(p.TelegramID, 10),
		ReferredBy:   p.ReferredBy,
	}
	err := s.db.WithContext(ctx).Create(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user %d: %w", p.TelegramID, err)
	}
	return &user, nil
}

// Credit adds amount to the user's balance and appends the matching
// transaction row in one database transaction.
func (s *Store) Credit(ctx context.Context, telegramID int64, amount int64, kind, description string) (*models.Transaction, error) {
	var record models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.User
		if err := lockForUpdate(tx).Where("telegram_id = ?", telegramID).First(&locked).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		err := tx.Model(&models.User{}).
			Where("telegram_id = ?", telegramID).
			Update("total_mined", gorm.Expr("total_mined + ?", amount)).Error
		if err != nil {
			return err
		}

		record = models.Transaction{
			UserID:      telegramID,
			Amount:      amount,
			Kind:        kind,
			Description: description,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("credit user %d: %w", telegramID, err)
	}
	return &record, nil
}

// RecordTap applies one accepted tap: taps+1, mined+amount, last_tap_time
// set to now, plus a mining transaction row, all atomically. The cooldown
// decision belongs to the engine; the store only records accepted taps.
func (s *Store) RecordTap(ctx context.Context, telegramID int64, amount int64, now time.Time) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		err := tx.Model(&models.User{}).
			Where("telegram_id = ?", telegramID).
			Updates(map[string]interface{}{
				"total_taps":    gorm.Expr("total_taps + 1"),
				"total_mined":   gorm.Expr("total_mined + ?", amount),
				"last_tap_time": now.Unix(),
			}).Error
		if err != nil {
			return err
		}

		record := models.Transaction{
			UserID:      telegramID,
			Amount:      amount,
			Kind:        models.TxKindMining,
			Description: "tap mining reward",
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		return tx.Where("telegram_id = ?", telegramID).First(&user).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("record tap for user %d: %w", telegramID, err)
	}
	return &user, nil
}

// LeaderboardEntry is one ranked row, ready for rendering.
type LeaderboardEntry struct {
	Name       string `json:"name"`
	TotalMined int64  `json:"total_mined"`
}

// TopN returns the n richest users, mined descending, earlier registrations
// first on ties.
func (s *Store) TopN(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Order("total_mined DESC, id ASC").
		Limit(n).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i := range users {
		entries = append(entries, LeaderboardEntry{
			Name:       users[i].DisplayName(),
			TotalMined: users[i].TotalMined,
		})
	}
	return entries, nil
}

// Totals is the ledger-wide aggregate.
type Totals struct {
	Users      int64 `json:"users"`
	TotalTaps  int64 `json:"total_taps"`
	TotalMined int64 `json:"total_mined"`
}

func (s *Store) Aggregate(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.WithContext(ctx).Raw(
		"SELECT COUNT(*) AS users, COALESCE(SUM(total_taps), 0) AS total_taps, COALESCE(SUM(total_mined), 0) AS total_mined FROM users",
	).Scan(&t).Error
	if err != nil {
		return Totals{}, fmt.Errorf("aggregate query: %w", err)
	}
	return t, nil
}

// UserTransactions returns the audit trail for one user, oldest first.
func (s *Store) UserTransactions(ctx context.Context, telegramID int64) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", telegramID).
		Order("id ASC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("transactions for user %d: %w", telegramID, err)
	}
	return txs, nil
}
