package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access to the ledger.
// It implements the LedgerStore interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements LedgerStore
var _ LedgerStore = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database.
// Pass ":memory:" for an in-memory database.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for seeding in tests and tools.
func (s *Storage) DB() *sql.DB {
	return s.db
}

const bankTransactionColumns = `name, date, deposit, withdrawal, currency,
	bank_account, company, reference_number, description, party_type, party,
	allocated_amount, unallocated_amount, status, docstatus`

// GetBankTransaction retrieves a transaction by name.
func (s *Storage) GetBankTransaction(ctx context.Context, name string) (*BankTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bankTransactionColumns+` FROM bank_transactions WHERE name = ?`, name)
	return scanBankTransaction(row)
}

// ListBankTransactions returns transactions matching the given filters.
func (s *Storage) ListBankTransactions(ctx context.Context, filters BankTransactionFilters) ([]*BankTransaction, error) {
	var conds []string
	var args []any

	if filters.BankAccount != "" {
		conds = append(conds, "bank_account = ?")
		args = append(args, filters.BankAccount)
	}
	if filters.OnlyUnallocated {
		conds = append(conds, "docstatus = ?", "unallocated_amount > ?")
		args = append(args, DocstatusSubmitted, Epsilon)
	}
	if filters.FromDate != nil {
		conds = append(conds, "date >= ?")
		args = append(args, *filters.FromDate)
	}
	if filters.ToDate != nil {
		conds = append(conds, "date <= ?")
		args = append(args, *filters.ToDate)
	}

	query := `SELECT ` + bankTransactionColumns + ` FROM bank_transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	switch filters.OrderBy {
	case "date desc":
		query += " ORDER BY date DESC, name"
	default:
		query += " ORDER BY date ASC, name"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bank transactions: %w", err)
	}
	defer rows.Close()

	var result []*BankTransaction
	for rows.Next() {
		bt, err := scanBankTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, bt)
	}
	return result, rows.Err()
}

// InsertBankTransactions inserts new rows only; existing names are skipped.
func (s *Storage) InsertBankTransactions(ctx context.Context, txns []*BankTransaction) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO bank_transactions
	(`+bankTransactionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i, bt := range txns {
		res, err := stmt.ExecContext(ctx,
			bt.Name, bt.Date, bt.Deposit, bt.Withdrawal, bt.Currency,
			bt.BankAccount, bt.Company, bt.ReferenceNumber, bt.Description,
			bt.PartyType, bt.Party, bt.AllocatedAmount, bt.UnallocatedAmount,
			string(bt.Status), bt.Docstatus,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBankTransaction(row rowScanner) (*BankTransaction, error) {
	bt := &BankTransaction{}
	var status string
	err := row.Scan(
		&bt.Name, &bt.Date, &bt.Deposit, &bt.Withdrawal, &bt.Currency,
		&bt.BankAccount, &bt.Company, &bt.ReferenceNumber, &bt.Description,
		&bt.PartyType, &bt.Party, &bt.AllocatedAmount, &bt.UnallocatedAmount,
		&status, &bt.Docstatus,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan bank transaction: %w", err)
	}
	bt.Status = BankTransactionStatus(status)
	return bt, nil
}

// GetBankAccount resolves a bank account to its GL account and company.
func (s *Storage) GetBankAccount(ctx context.Context, name string) (*BankAccount, error) {
	ba := &BankAccount{}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, gl_account, company FROM bank_accounts WHERE name = ?", name,
	).Scan(&ba.Name, &ba.GLAccount, &ba.Company)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bank account: %w", err)
	}
	return ba, nil
}

// GetAccount retrieves a GL account row.
func (s *Storage) GetAccount(ctx context.Context, name string) (*Account, error) {
	a := &Account{}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, company, currency, account_type FROM accounts WHERE name = ?", name,
	).Scan(&a.Name, &a.Company, &a.Currency, &a.AccountType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetCompanyCurrency returns the default currency of a company.
func (s *Storage) GetCompanyCurrency(ctx context.Context, company string) (string, error) {
	var currency string
	err := s.db.QueryRowContext(ctx,
		"SELECT currency FROM companies WHERE name = ?", company,
	).Scan(&currency)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get company currency: %w", err)
	}
	return currency, nil
}

// TotalAllocated returns, per voucher, the allocation totals grouped by GL account.
func (s *Storage) TotalAllocated(ctx context.Context, keys []VoucherKey) (map[VoucherKey][]AllocationTotal, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var placeholders []string
	var args []any
	for _, key := range keys {
		placeholders = append(placeholders, "(?, ?)")
		args = append(args, string(key.Type), key.Name)
	}

	query := `
	SELECT voucher_type, voucher_name, gl_account, SUM(allocated_amount)
	FROM allocations
	WHERE (voucher_type, voucher_name) IN (VALUES ` + strings.Join(placeholders, ", ") + `)
	GROUP BY voucher_type, voucher_name, gl_account`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("total allocated: %w", err)
	}
	defer rows.Close()

	result := make(map[VoucherKey][]AllocationTotal)
	for rows.Next() {
		var voucherType, voucherName, glAccount string
		var total float64
		if err := rows.Scan(&voucherType, &voucherName, &glAccount, &total); err != nil {
			return nil, err
		}
		key := VoucherKey{Type: VoucherType(voucherType), Name: voucherName}
		result[key] = append(result[key], AllocationTotal{GLAccount: glAccount, Total: total})
	}
	return result, rows.Err()
}

// ListAllocations returns all allocations recorded against a bank transaction.
func (s *Storage) ListAllocations(ctx context.Context, bankTransaction string) ([]Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, bank_transaction, voucher_type, voucher_name, allocated_amount, gl_account, created_at
	FROM allocations WHERE bank_transaction = ? ORDER BY created_at, id`, bankTransaction)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var result []Allocation
	for rows.Next() {
		var a Allocation
		var voucherType string
		if err := rows.Scan(&a.ID, &a.BankTransaction, &voucherType, &a.VoucherName,
			&a.AllocatedAmount, &a.GLAccount, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.VoucherType = VoucherType(voucherType)
		result = append(result, a)
	}
	return result, rows.Err()
}

// ApplyReconciliation atomically writes allocations and the updated
// transaction amounts/status, and marks fully consumed vouchers cleared.
// The update carries an optimistic guard on the unallocated amount the
// caller read, so concurrent reconciliations of the same transaction
// cannot silently overwrite each other.
func (s *Storage) ApplyReconciliation(ctx context.Context, txn *BankTransaction, expectedUnallocated float64, allocations []Allocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range allocations {
		a := &allocations[i]
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO allocations
		(id, bank_transaction, voucher_type, voucher_name, allocated_amount, gl_account)
		VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.BankTransaction, string(a.VoucherType), a.VoucherName,
			a.AllocatedAmount, a.GLAccount,
		); err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}

		if err := s.clearVoucherIfConsumed(ctx, tx, a, txn.Date); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `
	UPDATE bank_transactions
	SET allocated_amount = ?, unallocated_amount = ?, status = ?
	WHERE name = ? AND docstatus = ? AND ABS(unallocated_amount - ?) <= ?`,
		txn.AllocatedAmount, txn.UnallocatedAmount, string(txn.Status),
		txn.Name, DocstatusSubmitted, expectedUnallocated, Epsilon,
	)
	if err != nil {
		return fmt.Errorf("update bank transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// clearVoucherIfConsumed sets the voucher's clearance date once its claimable
// amount is fully allocated across bank transactions.
func (s *Storage) clearVoucherIfConsumed(ctx context.Context, tx *sql.Tx, a *Allocation, clearedOn time.Time) error {
	var table string
	var claimable float64
	var err error

	switch a.VoucherType {
	case VoucherPaymentEntry:
		table = "payment_entries"
		err = tx.QueryRowContext(ctx,
			"SELECT paid_amount FROM payment_entries WHERE name = ?", a.VoucherName,
		).Scan(&claimable)
	case VoucherJournalEntry:
		// The claimable amount of a journal entry is its leg against the
		// bank GL account.
		table = "journal_entries"
		err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(debit_in_account_currency + credit_in_account_currency), 0)
		FROM journal_entry_accounts WHERE journal_entry = ? AND account = ?`,
			a.VoucherName, a.GLAccount,
		).Scan(&claimable)
	case VoucherLoanDisbursement:
		table = "loan_disbursements"
		err = tx.QueryRowContext(ctx,
			"SELECT disbursed_amount FROM loan_disbursements WHERE name = ?", a.VoucherName,
		).Scan(&claimable)
	case VoucherLoanRepayment:
		table = "loan_repayments"
		err = tx.QueryRowContext(ctx,
			"SELECT amount_paid FROM loan_repayments WHERE name = ?", a.VoucherName,
		).Scan(&claimable)
	default:
		// Variant has no clearance tracking (bank transactions and unpaid
		// invoices are tracked via their own outstanding amounts).
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read voucher amount: %w", err)
	}

	var total float64
	if err := tx.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(allocated_amount), 0) FROM allocations
	WHERE voucher_type = ? AND voucher_name = ? AND gl_account = ?`,
		string(a.VoucherType), a.VoucherName, a.GLAccount,
	).Scan(&total); err != nil {
		return fmt.Errorf("sum allocations: %w", err)
	}

	if total < claimable-Epsilon {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE "+table+" SET clearance_date = ? WHERE name = ?",
		clearedOn, a.VoucherName,
	); err != nil {
		return fmt.Errorf("set clearance date: %w", err)
	}
	return nil
}
