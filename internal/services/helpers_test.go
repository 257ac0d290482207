package services

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store    *database.MemoryStore
	settings *config.Settings
	provider *config.Provider
	audit    *audit.Logger
	ledger   *LedgerService
	hasher   *Argon2Hasher
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	settings := config.DefaultSettings()
	settings.LockTimeout = time.Second

	env := &testEnv{
		store:    database.NewMemoryStore(),
		settings: settings,
		provider: config.NewStaticProvider(settings),
		audit:    audit.NewLoggerTo(log.New(io.Discard, "", 0)),
		hasher:   &Argon2Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLength: 16, SaltLength: 8},
		now:      time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
	env.ledger = NewLedgerService(env.store, env.provider, env.audit).WithClock(func() time.Time { return env.now })
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seed inserts an account at level under referrer ("" for a root account).
func (e *testEnv) seed(t *testing.T, id, referrer string, level models.MembershipLevel) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	require.NoError(t, err)
	a := &models.Account{
		ID:                      id,
		MembershipLevel:         level,
		BankChangeStatus:        models.BankChangeNone,
		BankChangeConfirmations: models.DateList{},
		CreatedAt:               e.now,
	}
	if referrer != "" {
		ref := referrer
		a.ReferrerID = &ref
	}
	require.NoError(t, tx.InsertAccount(ctx, a))
	require.NoError(t, tx.Commit())
}

// fund credits a wallet through the ledger so cached balances and entries agree.
func (e *testEnv) fund(t *testing.T, id string, wallet models.Wallet, amount string) {
	t.Helper()
	_, err := e.ledger.Apply(context.Background(), id, wallet, dec(amount), models.ReasonDeposit,
		"seed:"+id+":"+string(wallet)+":"+amount)
	require.NoError(t, err)
}

// mutate edits an account row directly, bypassing the ledger.
func (e *testEnv) mutate(t *testing.T, id string, fn func(a *models.Account)) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	require.NoError(t, err)
	a, err := tx.LockAccount(ctx, id)
	require.NoError(t, err)
	fn(a)
	require.NoError(t, tx.SaveAccount(ctx, a))
	require.NoError(t, tx.Commit())
}

func (e *testEnv) account(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (e *testEnv) setPassword(t *testing.T, id, password string) {
	t.Helper()
	hashed, err := e.hasher.Hash(password)
	require.NoError(t, err)
	e.mutate(t, id, func(a *models.Account) { a.TransactionPasswordHash = hashed })
}

func (e *testEnv) commissions() *CommissionService {
	c := NewCommissionService(e.store, e.ledger, e.provider, e.audit)
	c.backoff = time.Millisecond
	return c
}

// assertConsistent checks that both cached balances equal the sum of their entries.
func (e *testEnv) assertConsistent(t *testing.T, id string) {
	t.Helper()
	recs, err := e.ledger.Verify(context.Background(), id)
	require.NoError(t, err)
	for _, r := range recs {
		require.True(t, r.Consistent, "%s wallet of %s: cached %s, entries %s", r.Wallet, id, r.Cached, r.FromLedger)
	}
}

type MockPayoutPublisher struct {
	mock.Mock
}

func (m *MockPayoutPublisher) PublishPayout(ctx context.Context, w *models.Withdrawal) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockPayoutPublisher) PublishRecall(ctx context.Context, w *models.Withdrawal) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}
