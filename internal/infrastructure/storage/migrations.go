package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_indexes",
		Up:      migration002AddIndexes,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version, migration.Name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func migration001InitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			name TEXT PRIMARY KEY,
			currency TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			name TEXT PRIMARY KEY,
			company TEXT NOT NULL,
			currency TEXT NOT NULL,
			account_type TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS bank_accounts (
			name TEXT PRIMARY KEY,
			gl_account TEXT NOT NULL,
			company TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bank_transactions (
			name TEXT PRIMARY KEY,
			date DATETIME NOT NULL,
			deposit REAL NOT NULL DEFAULT 0,
			withdrawal REAL NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			bank_account TEXT NOT NULL,
			company TEXT NOT NULL,
			reference_number TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			party_type TEXT NOT NULL DEFAULT '',
			party TEXT NOT NULL DEFAULT '',
			allocated_amount REAL NOT NULL DEFAULT 0,
			unallocated_amount REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'Unreconciled',
			docstatus INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS payment_entries (
			name TEXT PRIMARY KEY,
			payment_type TEXT NOT NULL,
			posting_date DATETIME NOT NULL,
			reference_no TEXT NOT NULL DEFAULT '',
			reference_date DATETIME,
			party_type TEXT NOT NULL DEFAULT '',
			party TEXT NOT NULL DEFAULT '',
			party_name TEXT NOT NULL DEFAULT '',
			paid_amount REAL NOT NULL DEFAULT 0,
			received_amount REAL NOT NULL DEFAULT 0,
			paid_from TEXT NOT NULL DEFAULT '',
			paid_to TEXT NOT NULL DEFAULT '',
			paid_from_account_currency TEXT NOT NULL DEFAULT '',
			paid_to_account_currency TEXT NOT NULL DEFAULT '',
			mode_of_payment TEXT NOT NULL DEFAULT '',
			project TEXT NOT NULL DEFAULT '',
			cost_center TEXT NOT NULL DEFAULT '',
			clearance_date DATETIME,
			docstatus INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			name TEXT PRIMARY KEY,
			voucher_type TEXT NOT NULL DEFAULT '',
			posting_date DATETIME NOT NULL,
			cheque_no TEXT NOT NULL DEFAULT '',
			cheque_date DATETIME,
			pay_to_recd_from TEXT NOT NULL DEFAULT '',
			user_remark TEXT NOT NULL DEFAULT '',
			mode_of_payment TEXT NOT NULL DEFAULT '',
			clearance_date DATETIME,
			docstatus INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS journal_entry_accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			journal_entry TEXT NOT NULL REFERENCES journal_entries(name),
			account TEXT NOT NULL,
			party_type TEXT NOT NULL DEFAULT '',
			party TEXT NOT NULL DEFAULT '',
			debit_in_account_currency REAL NOT NULL DEFAULT 0,
			credit_in_account_currency REAL NOT NULL DEFAULT 0,
			account_currency TEXT NOT NULL DEFAULT '',
			cost_center TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS sales_invoices (
			name TEXT PRIMARY KEY,
			customer TEXT NOT NULL,
			customer_name TEXT NOT NULL DEFAULT '',
			posting_date DATETIME NOT NULL,
			currency TEXT NOT NULL,
			company TEXT NOT NULL,
			outstanding_amount REAL NOT NULL DEFAULT 0,
			is_return INTEGER NOT NULL DEFAULT 0,
			is_pos INTEGER NOT NULL DEFAULT 0,
			docstatus INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sales_invoice_payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sales_invoice TEXT NOT NULL REFERENCES sales_invoices(name),
			amount REAL NOT NULL DEFAULT 0,
			account TEXT NOT NULL,
			clearance_date DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_invoices (
			name TEXT PRIMARY KEY,
			supplier TEXT NOT NULL,
			supplier_name TEXT NOT NULL DEFAULT '',
			posting_date DATETIME NOT NULL,
			bill_no TEXT NOT NULL DEFAULT '',
			bill_date DATETIME,
			currency TEXT NOT NULL,
			company TEXT NOT NULL,
			paid_amount REAL NOT NULL DEFAULT 0,
			outstanding_amount REAL NOT NULL DEFAULT 0,
			is_paid INTEGER NOT NULL DEFAULT 0,
			is_return INTEGER NOT NULL DEFAULT 0,
			cash_bank_account TEXT NOT NULL DEFAULT '',
			clearance_date DATETIME,
			docstatus INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS expense_claims (
			name TEXT PRIMARY KEY,
			employee TEXT NOT NULL,
			employee_name TEXT NOT NULL DEFAULT '',
			posting_date DATETIME NOT NULL,
			company TEXT NOT NULL,
			total_sanctioned_amount REAL NOT NULL DEFAULT 0,
			total_taxes_and_charges REAL NOT NULL DEFAULT 0,
			total_amount_reimbursed REAL NOT NULL DEFAULT 0,
			total_advance_amount REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'Unpaid',
			docstatus INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS loan_disbursements (
			name TEXT PRIMARY KEY,
			applicant_type TEXT NOT NULL DEFAULT '',
			applicant TEXT NOT NULL DEFAULT '',
			disbursed_amount REAL NOT NULL DEFAULT 0,
			reference_number TEXT NOT NULL DEFAULT '',
			reference_date DATETIME,
			disbursement_date DATETIME NOT NULL,
			disbursement_account TEXT NOT NULL,
			clearance_date DATETIME,
			docstatus INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS loan_repayments (
			name TEXT PRIMARY KEY,
			applicant_type TEXT NOT NULL DEFAULT '',
			applicant TEXT NOT NULL DEFAULT '',
			amount_paid REAL NOT NULL DEFAULT 0,
			reference_number TEXT NOT NULL DEFAULT '',
			reference_date DATETIME,
			posting_date DATETIME NOT NULL,
			payment_account TEXT NOT NULL,
			repay_from_salary INTEGER NOT NULL DEFAULT 0,
			clearance_date DATETIME,
			docstatus INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS allocations (
			id TEXT PRIMARY KEY,
			bank_transaction TEXT NOT NULL REFERENCES bank_transactions(name),
			voucher_type TEXT NOT NULL,
			voucher_name TEXT NOT NULL,
			allocated_amount REAL NOT NULL,
			gl_account TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migration002AddIndexes(tx *sql.Tx) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_bank_transactions_account_date ON bank_transactions(bank_account, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bank_transactions_status ON bank_transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_entries_accounts ON payment_entries(paid_from, paid_to)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_entry_accounts_account ON journal_entry_accounts(account)`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_voucher ON allocations(voucher_type, voucher_name, gl_account)`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_transaction ON allocations(bank_transaction)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
