package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// LedgerStore defines the complete ledger storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type LedgerStore interface {
	BankTransactionRepository
	VoucherRepository
	AllocationRepository
	AccountRepository
	Close() error
}

// BankTransactionRepository handles bank transaction rows.
type BankTransactionRepository interface {
	// GetBankTransaction retrieves a transaction by name.
	GetBankTransaction(ctx context.Context, name string) (*BankTransaction, error)

	// ListBankTransactions returns transactions matching the given filters.
	ListBankTransactions(ctx context.Context, filters BankTransactionFilters) ([]*BankTransaction, error)

	// InsertBankTransactions inserts new rows only; existing names are
	// skipped. Returns the number of rows inserted.
	InsertBankTransactions(ctx context.Context, rows []*BankTransaction) (int, error)
}

// VoucherRepository handles voucher reads and draft voucher writes.
type VoucherRepository interface {
	// QueryVouchers returns voucher rows passing the hard filters of q.
	// Rank scoring happens in the matching layer, over the returned rows.
	QueryVouchers(ctx context.Context, q VoucherQuery) ([]VoucherRow, error)

	// GetVoucher retrieves a single voucher projection, any variant.
	GetVoucher(ctx context.Context, voucherType VoucherType, name string) (*VoucherRow, error)

	// SavePaymentEntry inserts a payment entry draft.
	SavePaymentEntry(ctx context.Context, pe *PaymentEntry) error

	// SaveJournalEntry inserts a journal entry draft with its account rows.
	SaveJournalEntry(ctx context.Context, je *JournalEntry, accounts []JournalEntryAccount) error

	// SubmitVoucher moves a draft voucher to docstatus submitted.
	SubmitVoucher(ctx context.Context, voucherType VoucherType, name string) error
}

// AllocationTotal is the total allocated against a voucher on one GL account.
type AllocationTotal struct {
	GLAccount string
	Total     float64
}

// AllocationRepository handles allocation bookkeeping.
type AllocationRepository interface {
	// TotalAllocated returns, per voucher, the allocation totals grouped by
	// GL account.
	TotalAllocated(ctx context.Context, keys []VoucherKey) (map[VoucherKey][]AllocationTotal, error)

	// ListAllocations returns all allocations recorded against a bank
	// transaction.
	ListAllocations(ctx context.Context, bankTransaction string) ([]Allocation, error)

	// ApplyReconciliation atomically writes the allocations and the updated
	// transaction amounts/status. Vouchers whose claimable amount is fully
	// consumed get their clearance date set in the same transaction.
	// Either everything is written or nothing is. expectedUnallocated is the
	// unallocated amount the caller based its clamping on; a transaction
	// that no longer carries it was changed concurrently and the write
	// fails with ErrNotFound.
	ApplyReconciliation(ctx context.Context, txn *BankTransaction, expectedUnallocated float64, allocations []Allocation) error
}

// AccountRepository resolves account metadata.
type AccountRepository interface {
	GetBankAccount(ctx context.Context, name string) (*BankAccount, error)
	GetAccount(ctx context.Context, name string) (*Account, error)
	GetCompanyCurrency(ctx context.Context, company string) (string, error)
}
