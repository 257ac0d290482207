package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/earnhub/backend/internal/models"
	"github.com/shopspring/decimal"
)

type memState struct {
	accounts    map[string]*models.Account
	entries     []models.LedgerEntry
	entryKeys   map[string]int
	deposits    map[string]*models.Deposit
	withdrawals map[string]*models.Withdrawal
	commissions []models.Commission
	upgrades    []models.RankUpgradeRequest
	snapshots   map[string]models.SalarySnapshot
}

func newMemState() *memState {
	return &memState{
		accounts:    make(map[string]*models.Account),
		entryKeys:   make(map[string]int),
		deposits:    make(map[string]*models.Deposit),
		withdrawals: make(map[string]*models.Withdrawal),
		snapshots:   make(map[string]models.SalarySnapshot),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:    make(map[string]*models.Account, len(s.accounts)),
		entries:     append([]models.LedgerEntry(nil), s.entries...),
		entryKeys:   make(map[string]int, len(s.entryKeys)),
		deposits:    make(map[string]*models.Deposit, len(s.deposits)),
		withdrawals: make(map[string]*models.Withdrawal, len(s.withdrawals)),
		commissions: append([]models.Commission(nil), s.commissions...),
		upgrades:    append([]models.RankUpgradeRequest(nil), s.upgrades...),
		snapshots:   make(map[string]models.SalarySnapshot, len(s.snapshots)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v.Clone()
	}
	for k, v := range s.entryKeys {
		c.entryKeys[k] = v
	}
	for k, v := range s.deposits {
		d := *v
		c.deposits[k] = &d
	}
	for k, v := range s.withdrawals {
		w := *v
		if v.Destination != nil {
			dest := *v.Destination
			w.Destination = &dest
		}
		c.withdrawals[k] = &w
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	return c
}

// MemoryStore keeps all state in process and backs tests and local development. A transaction
// works on a private copy that replaces the shared state on Commit. Transactions are serialized
// across all accounts; per-account isolation comes from row locks in the postgres driver.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (m *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return &memTx{store: m, state: m.state.clone()}, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.state.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryStore) ListReferralNodes(ctx context.Context) ([]models.ReferralNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := make([]models.ReferralNode, 0, len(m.state.accounts))
	for _, a := range m.state.accounts {
		nodes = append(nodes, referralNode(a))
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].AccountID < nodes[j].AccountID })
	return nodes, nil
}

func (m *MemoryStore) ListDirectReferrals(ctx context.Context, referrerID string) ([]models.ReferralNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var nodes []models.ReferralNode
	for _, a := range m.state.accounts {
		if a.ReferrerID != nil && *a.ReferrerID == referrerID {
			nodes = append(nodes, referralNode(a))
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].AccountID < nodes[j].AccountID })
	return nodes, nil
}

func referralNode(a *models.Account) models.ReferralNode {
	n := models.ReferralNode{AccountID: a.ID, MembershipLevel: a.MembershipLevel}
	if a.ReferrerID != nil {
		ref := *a.ReferrerID
		n.ReferrerID = &ref
	}
	return n
}

func (m *MemoryStore) ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.LedgerEntry
	for i := len(m.state.entries) - 1; i >= 0; i-- {
		if m.state.entries[i].AccountID == accountID {
			out = append(out, m.state.entries[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.state.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *d
	return &c, nil
}

func (m *MemoryStore) ListDeposits(ctx context.Context, status string, limit int) ([]models.Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Deposit
	for _, d := range m.state.deposits {
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.state.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *w
	return &c, nil
}

func (m *MemoryStore) ListWithdrawals(ctx context.Context, status string, limit int) ([]models.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Withdrawal
	for _, w := range m.state.withdrawals {
		if status == "" || w.Status == status {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListCommissions(ctx context.Context, toAccountID string, limit int) ([]models.Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Commission
	for i := len(m.state.commissions) - 1; i >= 0; i-- {
		if m.state.commissions[i].ToAccountID == toAccountID {
			out = append(out, m.state.commissions[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) ListRankUpgrades(ctx context.Context, accountID string) ([]models.RankUpgradeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RankUpgradeRequest
	for _, r := range m.state.upgrades {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListSalarySnapshots(ctx context.Context, accountID string) ([]models.SalarySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SalarySnapshot
	for _, s := range m.state.snapshots {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return out, nil
}

type memTx struct {
	store *MemoryStore
	state *memState
	done  bool
}

func (t *memTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	a, ok := t.state.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (t *memTx) InsertAccount(ctx context.Context, a *models.Account) error {
	if _, ok := t.state.accounts[a.ID]; ok {
		return ErrAlreadyExists
	}
	c := a.Clone()
	if c.Version == 0 {
		c.Version = 1
	}
	t.state.accounts[a.ID] = c
	return nil
}

func (t *memTx) SaveAccount(ctx context.Context, a *models.Account) error {
	cur, ok := t.state.accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != a.Version {
		return ErrVersionConflict
	}
	a.Version++
	a.UpdatedAt = time.Now()
	t.state.accounts[a.ID] = a.Clone()
	return nil
}

func (t *memTx) FindEntryByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	idx, ok := t.state.entryKeys[key]
	if !ok {
		return nil, nil
	}
	e := t.state.entries[idx]
	return &e, nil
}

func (t *memTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	if _, ok := t.state.entryKeys[e.IdempotencyKey]; ok {
		return ErrAlreadyExists
	}
	t.state.entries = append(t.state.entries, *e)
	t.state.entryKeys[e.IdempotencyKey] = len(t.state.entries) - 1
	return nil
}

func (t *memTx) SumEntries(ctx context.Context, accountID string, wallet models.Wallet) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range t.state.entries {
		if e.AccountID == accountID && e.Wallet == wallet {
			sum = sum.Add(e.Delta)
		}
	}
	return sum, nil
}

func (t *memTx) LockDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	d, ok := t.state.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *d
	return &c, nil
}

func (t *memTx) InsertDeposit(ctx context.Context, d *models.Deposit) error {
	if _, ok := t.state.deposits[d.ID]; ok {
		return ErrAlreadyExists
	}
	c := *d
	t.state.deposits[d.ID] = &c
	return nil
}

func (t *memTx) SaveDeposit(ctx context.Context, d *models.Deposit) error {
	if _, ok := t.state.deposits[d.ID]; !ok {
		return ErrNotFound
	}
	c := *d
	t.state.deposits[d.ID] = &c
	return nil
}

func (t *memTx) LockWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	w, ok := t.state.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *w
	return &c, nil
}

func (t *memTx) InsertWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	if _, ok := t.state.withdrawals[w.ID]; ok {
		return ErrAlreadyExists
	}
	c := *w
	t.state.withdrawals[w.ID] = &c
	return nil
}

func (t *memTx) SaveWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	if _, ok := t.state.withdrawals[w.ID]; !ok {
		return ErrNotFound
	}
	c := *w
	t.state.withdrawals[w.ID] = &c
	return nil
}

func (t *memTx) InsertCommission(ctx context.Context, c *models.Commission) error {
	for _, existing := range t.state.commissions {
		if existing.EventID == c.EventID && existing.FromAccountID == c.FromAccountID && existing.Level == c.Level {
			return ErrAlreadyExists
		}
	}
	t.state.commissions = append(t.state.commissions, *c)
	return nil
}

func (t *memTx) InsertRankUpgrade(ctx context.Context, r *models.RankUpgradeRequest) error {
	t.state.upgrades = append(t.state.upgrades, *r)
	return nil
}

func snapshotKey(accountID, period string) string {
	return accountID + "|" + period
}

func (t *memTx) GetSalarySnapshot(ctx context.Context, accountID, period string) (*models.SalarySnapshot, error) {
	s, ok := t.state.snapshots[snapshotKey(accountID, period)]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) InsertSalarySnapshot(ctx context.Context, s *models.SalarySnapshot) error {
	key := snapshotKey(s.AccountID, s.Period)
	if _, ok := t.state.snapshots[key]; ok {
		return ErrAlreadyExists
	}
	t.state.snapshots[key] = *s
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.state = t.state
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}
