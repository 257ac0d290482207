package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/earnhub/backend/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, referrer_id, membership_level, income_wallet, personal_wallet, bank_account,
	pending_bank_account, bank_change_status, bank_change_confirmations, transaction_password_hash,
	ledger_frozen, version, created_at, updated_at`

const depositColumns = `id, account_id, amount, payment_method, ft_code, status, revision, approver_id,
	approved_at, admin_notes, created_at, updated_at`

const withdrawalColumns = `id, account_id, wallet, amount, tax_amount, net_amount, destination, status,
	revision, approver_id, approved_at, admin_notes, created_at, updated_at`

const entryColumns = `id, account_id, wallet, delta, balance_after, reason, related_transaction_id,
	idempotency_key, created_at`

// PostgresStore implements Store on lib/pq. Row locks (FOR UPDATE) serialize writers per account.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &pgTx{tx: tx}, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var level, status string
	err := row.Scan(&a.ID, &a.ReferrerID, &level, &a.IncomeWallet, &a.PersonalWallet, &a.BankAccount,
		&a.PendingBankAccount, &status, &a.BankChangeConfirmations, &a.TransactionPasswordHash,
		&a.LedgerFrozen, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.MembershipLevel = models.MembershipLevel(level)
	a.BankChangeStatus = models.BankChangeStatus(status)
	return &a, nil
}

func scanDeposit(row rowScanner) (*models.Deposit, error) {
	var d models.Deposit
	err := row.Scan(&d.ID, &d.AccountID, &d.Amount, &d.PaymentMethod, &d.FTCode, &d.Status, &d.Revision,
		&d.ApproverID, &d.ApprovedAt, &d.AdminNotes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanWithdrawal(row rowScanner) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var wallet string
	err := row.Scan(&w.ID, &w.AccountID, &wallet, &w.Amount, &w.TaxAmount, &w.NetAmount, &w.Destination,
		&w.Status, &w.Revision, &w.ApproverID, &w.ApprovedAt, &w.AdminNotes, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	w.Wallet = models.Wallet(wallet)
	return &w, nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var wallet, reason string
	err := row.Scan(&e.ID, &e.AccountID, &wallet, &e.Delta, &e.BalanceAfter, &reason,
		&e.RelatedTransactionID, &e.IdempotencyKey, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Wallet = models.Wallet(wallet)
	e.Reason = models.EntryReason(reason)
	return &e, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func queryReferralNodes(ctx context.Context, q querier, query string, args ...any) ([]models.ReferralNode, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []models.ReferralNode
	for rows.Next() {
		var n models.ReferralNode
		var level string
		if err := rows.Scan(&n.AccountID, &n.ReferrerID, &level); err != nil {
			return nil, err
		}
		n.MembershipLevel = models.MembershipLevel(level)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *PostgresStore) ListReferralNodes(ctx context.Context) ([]models.ReferralNode, error) {
	return queryReferralNodes(ctx, s.db, `SELECT id, referrer_id, membership_level FROM accounts ORDER BY id`)
}

func (s *PostgresStore) ListDirectReferrals(ctx context.Context, referrerID string) ([]models.ReferralNode, error) {
	return queryReferralNodes(ctx, s.db,
		`SELECT id, referrer_id, membership_level FROM accounts WHERE referrer_id = $1 ORDER BY id`, referrerID)
}

func (s *PostgresStore) ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	return scanDeposit(s.db.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
}

func (s *PostgresStore) ListDeposits(ctx context.Context, status string, limit int) ([]models.Deposit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+depositColumns+` FROM deposits
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deposits := []models.Deposit{}
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, *d)
	}
	return deposits, rows.Err()
}

func (s *PostgresStore) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	return scanWithdrawal(s.db.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
}

func (s *PostgresStore) ListWithdrawals(ctx context.Context, status string, limit int) ([]models.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	withdrawals := []models.Withdrawal{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *w)
	}
	return withdrawals, rows.Err()
}

func (s *PostgresStore) ListCommissions(ctx context.Context, toAccountID string, limit int) ([]models.Commission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, from_account_id, to_account_id, source_event, event_id, base_amount, percent,
		       amount_earned, settings_version, created_at
		FROM commissions
		WHERE to_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, toAccountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commissions := []models.Commission{}
	for rows.Next() {
		var c models.Commission
		var level, source string
		if err := rows.Scan(&c.ID, &level, &c.FromAccountID, &c.ToAccountID, &source, &c.EventID,
			&c.BaseAmount, &c.Percent, &c.AmountEarned, &c.SettingsVersion, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Level = models.CommissionLevel(level)
		c.SourceEvent = models.CommissionSource(source)
		commissions = append(commissions, c)
	}
	return commissions, rows.Err()
}

func (s *PostgresStore) ListRankUpgrades(ctx context.Context, accountID string) ([]models.RankUpgradeRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, from_level, to_level, price, bonus_percent, bonus_amount, status, failure_reason, created_at
		FROM rank_upgrades
		WHERE account_id = $1
		ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	upgrades := []models.RankUpgradeRequest{}
	for rows.Next() {
		var r models.RankUpgradeRequest
		var from, to string
		if err := rows.Scan(&r.ID, &r.AccountID, &from, &to, &r.Price, &r.BonusPercent, &r.BonusAmount,
			&r.Status, &r.FailureReason, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.FromLevel = models.MembershipLevel(from)
		r.ToLevel = models.MembershipLevel(to)
		upgrades = append(upgrades, r)
	}
	return upgrades, rows.Err()
}

const snapshotColumns = `account_id, period, tier_matched, direct_qualified, network_qualified, amount_paid,
	wallet, settings_version, created_at`

func scanSnapshot(row rowScanner) (*models.SalarySnapshot, error) {
	var s models.SalarySnapshot
	var wallet string
	err := row.Scan(&s.AccountID, &s.Period, &s.TierMatched, &s.DirectQualified, &s.NetworkQualified,
		&s.AmountPaid, &wallet, &s.SettingsVersion, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Wallet = models.Wallet(wallet)
	return &s, nil
}

func (s *PostgresStore) ListSalarySnapshots(ctx context.Context, accountID string) ([]models.SalarySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM salary_snapshots
		WHERE account_id = $1 ORDER BY period DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := []models.SalarySnapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

type pgTx struct {
	tx *sql.Tx
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertAccount(ctx context.Context, a *models.Account) error {
	if a.Version == 0 {
		a.Version = 1
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, referrer_id, membership_level, income_wallet, personal_wallet,
		                      bank_change_status, bank_change_confirmations, transaction_password_hash,
		                      version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.ReferrerID, string(a.MembershipLevel), a.IncomeWallet, a.PersonalWallet,
		string(a.BankChangeStatus), a.BankChangeConfirmations, a.TransactionPasswordHash,
		a.Version, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (t *pgTx) SaveAccount(ctx context.Context, a *models.Account) error {
	now := time.Now()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET membership_level = $1, income_wallet = $2, personal_wallet = $3, bank_account = $4,
		    pending_bank_account = $5, bank_change_status = $6, bank_change_confirmations = $7,
		    transaction_password_hash = $8, ledger_frozen = $9, version = version + 1, updated_at = $10
		WHERE id = $11 AND version = $12`,
		string(a.MembershipLevel), a.IncomeWallet, a.PersonalWallet, a.BankAccount, a.PendingBankAccount,
		string(a.BankChangeStatus), a.BankChangeConfirmations, a.TransactionPasswordHash, a.LedgerFrozen,
		now, a.ID, a.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w for account %s", ErrVersionConflict, a.ID)
	}

	a.Version++
	a.UpdatedAt = now
	return nil
}

func (t *pgTx) FindEntryByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	e, err := scanEntry(t.tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (t *pgTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, wallet, delta, balance_after, reason, related_transaction_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.AccountID, string(e.Wallet), e.Delta, e.BalanceAfter, string(e.Reason),
		e.RelatedTransactionID, e.IdempotencyKey, e.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (t *pgTx) SumEntries(ctx context.Context, accountID string, wallet models.Wallet) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE account_id = $1 AND wallet = $2`,
		accountID, string(wallet)).Scan(&sum)
	return sum, err
}

func (t *pgTx) LockDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	return scanDeposit(t.tx.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertDeposit(ctx context.Context, d *models.Deposit) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO deposits (id, account_id, amount, payment_method, ft_code, status, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.AccountID, d.Amount, d.PaymentMethod, d.FTCode, d.Status, d.Revision, d.CreatedAt, d.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (t *pgTx) SaveDeposit(ctx context.Context, d *models.Deposit) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE deposits
		SET ft_code = $1, status = $2, revision = $3, approver_id = $4, approved_at = $5, admin_notes = $6, updated_at = $7
		WHERE id = $8`,
		d.FTCode, d.Status, d.Revision, d.ApproverID, d.ApprovedAt, d.AdminNotes, d.UpdatedAt, d.ID)
	return err
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	return scanWithdrawal(t.tx.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO withdrawals (id, account_id, wallet, amount, tax_amount, net_amount, destination, status, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.ID, w.AccountID, string(w.Wallet), w.Amount, w.TaxAmount, w.NetAmount, w.Destination,
		w.Status, w.Revision, w.CreatedAt, w.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (t *pgTx) SaveWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE withdrawals
		SET status = $1, revision = $2, approver_id = $3, approved_at = $4, admin_notes = $5, updated_at = $6
		WHERE id = $7`,
		w.Status, w.Revision, w.ApproverID, w.ApprovedAt, w.AdminNotes, w.UpdatedAt, w.ID)
	return err
}

func (t *pgTx) InsertCommission(ctx context.Context, c *models.Commission) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO commissions (id, level, from_account_id, to_account_id, source_event, event_id, base_amount,
		                         percent, amount_earned, settings_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, string(c.Level), c.FromAccountID, c.ToAccountID, string(c.SourceEvent), c.EventID, c.BaseAmount,
		c.Percent, c.AmountEarned, c.SettingsVersion, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (t *pgTx) InsertRankUpgrade(ctx context.Context, r *models.RankUpgradeRequest) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO rank_upgrades (id, account_id, from_level, to_level, price, bonus_percent, bonus_amount, status, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.AccountID, string(r.FromLevel), string(r.ToLevel), r.Price, r.BonusPercent, r.BonusAmount,
		r.Status, r.FailureReason, r.CreatedAt)
	return err
}

func (t *pgTx) GetSalarySnapshot(ctx context.Context, accountID, period string) (*models.SalarySnapshot, error) {
	return scanSnapshot(t.tx.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM salary_snapshots
		WHERE account_id = $1 AND period = $2`, accountID, period))
}

func (t *pgTx) InsertSalarySnapshot(ctx context.Context, s *models.SalarySnapshot) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO salary_snapshots (account_id, period, tier_matched, direct_qualified, network_qualified,
		                              amount_paid, wallet, settings_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.AccountID, s.Period, s.TierMatched, s.DirectQualified, s.NetworkQualified, s.AmountPaid,
		string(s.Wallet), s.SettingsVersion, s.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (t *pgTx) Commit() error {
	return t.tx.Commit()
}

func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
