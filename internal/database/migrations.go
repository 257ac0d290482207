package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		referrer_id TEXT REFERENCES accounts(id),
		membership_level TEXT NOT NULL DEFAULT 'intern',
		income_wallet NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (income_wallet >= 0),
		personal_wallet NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (personal_wallet >= 0),
		bank_account JSONB,
		pending_bank_account JSONB,
		bank_change_status TEXT NOT NULL DEFAULT 'none',
		bank_change_confirmations JSONB NOT NULL DEFAULT '[]',
		transaction_password_hash TEXT NOT NULL DEFAULT '',
		ledger_frozen BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_referrer ON accounts(referrer_id)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		wallet TEXT NOT NULL,
		delta NUMERIC(20,2) NOT NULL,
		balance_after NUMERIC(20,2) NOT NULL,
		reason TEXT NOT NULL,
		related_transaction_id TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, wallet)`,
	`CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount NUMERIC(20,2) NOT NULL,
		payment_method TEXT NOT NULL,
		ft_code TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 0,
		approver_id TEXT NOT NULL DEFAULT '',
		approved_at TIMESTAMPTZ,
		admin_notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status)`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		wallet TEXT NOT NULL,
		amount NUMERIC(20,2) NOT NULL,
		tax_amount NUMERIC(20,2) NOT NULL,
		net_amount NUMERIC(20,2) NOT NULL,
		destination JSONB,
		status TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 0,
		approver_id TEXT NOT NULL DEFAULT '',
		approved_at TIMESTAMPTZ,
		admin_notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status)`,
	`CREATE TABLE IF NOT EXISTS commissions (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		from_account_id TEXT NOT NULL REFERENCES accounts(id),
		to_account_id TEXT NOT NULL REFERENCES accounts(id),
		source_event TEXT NOT NULL,
		event_id TEXT NOT NULL,
		base_amount NUMERIC(20,2) NOT NULL,
		percent NUMERIC(8,4) NOT NULL,
		amount_earned NUMERIC(20,2) NOT NULL,
		settings_version INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (event_id, from_account_id, level)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commissions_to ON commissions(to_account_id)`,
	`CREATE TABLE IF NOT EXISTS rank_upgrades (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		from_level TEXT NOT NULL,
		to_level TEXT NOT NULL,
		price NUMERIC(20,2) NOT NULL,
		bonus_percent NUMERIC(8,4) NOT NULL,
		bonus_amount NUMERIC(20,2) NOT NULL,
		status TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS salary_snapshots (
		account_id TEXT NOT NULL REFERENCES accounts(id),
		period TEXT NOT NULL,
		tier_matched TEXT NOT NULL,
		direct_qualified INTEGER NOT NULL,
		network_qualified INTEGER NOT NULL,
		amount_paid NUMERIC(20,2) NOT NULL,
		wallet TEXT NOT NULL,
		settings_version INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (account_id, period)
	)`,
}

// Migrate creates the ledger schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	log.Printf("[DATABASE] Schema up to date (%d statements)", len(migrations))
	return nil
}
