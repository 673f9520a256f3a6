package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mhdcoin-bot/internal/ledger"
	"mhdcoin-bot/internal/models"
)

func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	// sqlite allows one writer; a single connection keeps concurrent
	// operations queued instead of failing with a busy error.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Transaction{}))
	return ledger.New(db)
}

func mustCreate(t *testing.T, s *ledger.Store, id int64, name string) *models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), ledger.CreateUserParams{TelegramID: id, FirstName: name})
	require.NoError(t, err)
	return u
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref := int64(42)
	created, err := s.CreateUser(ctx, ledger.CreateUserParams{
		TelegramID: 100,
		Username:   "alice",
		FirstName:  "Alice",
		ReferredBy: &ref,
	})
	require.NoError(t, err)
	assert.Equal(t, "100", created.ReferralCode)
	require.NotNil(t, created.ReferredBy)
	assert.Equal(t, ref, *created.ReferredBy)

	got, err := s.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, int64(0), got.TotalTaps)
	assert.Equal(t, int64(0), got.TotalMined)
	assert.Equal(t, int64(0), got.LastTapTime)
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetUser(context.Background(), 999)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, 100, "Alice")

	_, err := s.CreateUser(context.Background(), ledger.CreateUserParams{TelegramID: 100})
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)

	totals, aerr := s.Aggregate(context.Background())
	require.NoError(t, aerr)
	assert.Equal(t, int64(1), totals.Users)
}

func TestCreditUnknownUser(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Credit(context.Background(), 404, 50, models.TxKindReferral, "bonus")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCreditAppendsTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, 100, "Alice")

	tx, err := s.Credit(ctx, 100, 50, models.TxKindReferral, "referral bonus for inviting user 200")
	require.NoError(t, err)
	assert.Equal(t, int64(50), tx.Amount)
	assert.Equal(t, models.TxKindReferral, tx.Kind)

	_, err = s.Credit(ctx, 100, 25, models.TxKindReferral, "another bonus")
	require.NoError(t, err)

	user, err := s.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(75), user.TotalMined)

	txs, err := s.UserTransactions(ctx, 100)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(50), txs[0].Amount)
	assert.Equal(t, int64(25), txs[1].Amount)
}

func TestRecordTap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, 100, "Alice")

	now := time.Unix(1_700_000_000, 0)
	user, err := s.RecordTap(ctx, 100, 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.TotalTaps)
	assert.Equal(t, int64(1), user.TotalMined)
	assert.Equal(t, now.Unix(), user.LastTapTime)

	txs, err := s.UserTransactions(ctx, 100)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxKindMining, txs[0].Kind)
	assert.Equal(t, int64(1), txs[0].Amount)
}

func TestRecordTapUnknownUser(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RecordTap(context.Background(), 404, 1, time.Now())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// The audit-trail invariant: after any sequence of operations, the sum of a
// user's transactions equals their balance.
func TestLedgerSumMatchesBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, 100, "Alice")

	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		_, err := s.RecordTap(ctx, 100, 1, now.Add(time.Duration(i)*10*time.Second))
		require.NoError(t, err)
	}
	_, err := s.Credit(ctx, 100, 50, models.TxKindReferral, "bonus")
	require.NoError(t, err)

	user, err := s.GetUser(ctx, 100)
	require.NoError(t, err)

	txs, err := s.UserTransactions(ctx, 100)
	require.NoError(t, err)
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	assert.Equal(t, user.TotalMined, sum)
	assert.Equal(t, int64(55), sum)
}

func TestTopNOrderingAndTies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, 1, "First")
	mustCreate(t, s, 2, "Second")
	mustCreate(t, s, 3, "Third")

	_, err := s.Credit(ctx, 2, 100, models.TxKindReferral, "x")
	require.NoError(t, err)
	_, err = s.Credit(ctx, 1, 30, models.TxKindReferral, "x")
	require.NoError(t, err)
	_, err = s.Credit(ctx, 3, 30, models.TxKindReferral, "x")
	require.NoError(t, err)

	entries, err := s.TopN(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Second", entries[0].Name)
	// Tie between First and Third resolves by registration order.
	assert.Equal(t, "First", entries[1].Name)
	assert.Equal(t, "Third", entries[2].Name)

	// Stable across repeated reads with no intervening writes.
	again, err := s.TopN(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, entries, again)

	limited, err := s.TopN(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "Second", limited[0].Name)
}

// Concurrent credits to the same row must all land: the store's per-row
// serialization may not lose an increment or drop a transaction row.
func TestConcurrentCreditsNoLostUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, 100, "Alice")

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Credit(ctx, 100, 1, models.TxKindReferral, "concurrent credit")
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
	}

	user, err := s.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), user.TotalMined)

	txs, err := s.UserTransactions(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, txs, workers)
}

func TestConcurrentRecordTapsNoLostUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, 100, "Alice")
	now := time.Unix(1_700_000_000, 0)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.RecordTap(ctx, 100, 1, now)
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
	}

	user, err := s.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), user.TotalTaps)
	assert.Equal(t, int64(workers), user.TotalMined)
}

func TestAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	totals, err := s.Aggregate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.Totals{}, totals)

	mustCreate(t, s, 1, "A")
	mustCreate(t, s, 2, "B")
	now := time.Unix(1_700_000_000, 0)
	_, err = s.RecordTap(ctx, 1, 1, now)
	require.NoError(t, err)
	_, err = s.RecordTap(ctx, 2, 1, now)
	require.NoError(t, err)
	_, err = s.Credit(ctx, 1, 50, models.TxKindReferral, "bonus")
	require.NoError(t, err)

	totals, err = s.Aggregate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Users)
	assert.Equal(t, int64(2), totals.TotalTaps)
	assert.Equal(t, int64(52), totals.TotalMined)
}
