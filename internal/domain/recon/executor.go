// Package recon applies allocations to bank transactions and drives
// the unattended reconciliation loop.
//
// The Executor is the only writer of allocations: it validates a
// batch of (voucher, amount) pairs against a transaction, clamps each
// amount to the voucher's remaining claimable amount, writes all
// allocations atomically and recomputes the transaction status.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// VoucherAllocation is one requested (voucher, amount) pair in a
// reconciliation batch.
type VoucherAllocation struct {
	VoucherType storage.VoucherType `json:"voucher_type"`
	VoucherName string              `json:"voucher_name"`
	Amount      float64             `json:"amount"`
	PartyType   string              `json:"party_type,omitempty"`
	Party       string              `json:"party,omitempty"`
}

// VoucherOutcome is the result of the single-voucher reconciliation
// path. Deleted means the voucher vanished before allocation; a nil
// Transaction with Deleted false means the voucher was not yet
// submitted and nothing was done. Both are expected races, not errors.
type VoucherOutcome struct {
	Deleted     bool
	Transaction *storage.BankTransaction
}

// Executor applies reconciliation batches.
type Executor struct {
	store  storage.LedgerStore
	logger *slog.Logger
}

// NewExecutor creates a reconciliation executor.
func NewExecutor(store storage.LedgerStore, logger *slog.Logger) *Executor {
	return &Executor{store: store, logger: logger}
}

// Reconcile allocates the given vouchers against a bank transaction
// and returns the updated transaction. Amounts are clamped to each
// voucher's remaining claimable amount on the transaction's ledger
// account, so repeated invocations can never over-allocate. A batch
// where no amount is set spreads the transaction's open amount across
// the vouchers pro rata to their claimable amounts.
func (e *Executor) Reconcile(ctx context.Context, transactionName string, vouchers []VoucherAllocation, allowMultiParty bool) (*storage.BankTransaction, error) {
	txn, err := e.store.GetBankTransaction(ctx, transactionName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{VoucherType: storage.VoucherBankTransaction, Name: transactionName}
		}
		return nil, fmt.Errorf("load bank transaction %s: %w", transactionName, err)
	}
	if txn.Docstatus != storage.DocstatusSubmitted {
		return nil, &ConcurrencyError{
			VoucherType: storage.VoucherBankTransaction,
			Name:        transactionName,
			Reason:      "transaction is not submitted",
		}
	}
	if txn.Deposit > 0 && txn.Withdrawal > 0 {
		return nil, validationf("transaction %s has both deposit and withdrawal set", transactionName)
	}

	bankAccount, err := e.store.GetBankAccount(ctx, txn.BankAccount)
	if err != nil {
		return nil, fmt.Errorf("resolve bank account %s: %w", txn.BankAccount, err)
	}
	glAccount := bankAccount.GLAccount

	rows, err := e.validateBatch(ctx, vouchers, allowMultiParty)
	if err != nil {
		return nil, err
	}

	allocations, err := e.buildAllocations(ctx, txn, glAccount, vouchers, rows)
	if err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return txn, nil
	}

	var allocated float64
	for _, a := range allocations {
		allocated += a.AllocatedAmount
	}

	priorUnallocated := txn.UnallocatedAmount
	txn.AllocatedAmount += allocated
	txn.UnallocatedAmount -= allocated
	if txn.UnallocatedAmount < 0 {
		txn.UnallocatedAmount = 0
	}
	txn.Status = transactionStatus(txn)

	if err := e.store.ApplyReconciliation(ctx, txn, priorUnallocated, allocations); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &ConcurrencyError{
				VoucherType: storage.VoucherBankTransaction,
				Name:        transactionName,
				Reason:      "transaction changed during reconciliation",
			}
		}
		return nil, fmt.Errorf("apply reconciliation: %w", err)
	}

	e.logger.Info("reconciled bank transaction",
		"transaction", txn.Name,
		"allocated", allocated,
		"unallocated", txn.UnallocatedAmount,
		"status", txn.Status)
	return txn, nil
}

// ReconcileVoucher is the single-voucher convenience path, safe to
// trigger asynchronously right after the voucher's own creation. A
// voucher deleted in the meantime yields a Deleted outcome; one not
// yet submitted yields an empty no-op outcome.
func (e *Executor) ReconcileVoucher(ctx context.Context, transactionName string, amount float64, voucherType storage.VoucherType, voucherName string) (*VoucherOutcome, error) {
	row, err := e.store.GetVoucher(ctx, voucherType, voucherName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &VoucherOutcome{Deleted: true}, nil
		}
		return nil, fmt.Errorf("load %s %s: %w", voucherType, voucherName, err)
	}
	if row.Docstatus != storage.DocstatusSubmitted {
		return &VoucherOutcome{}, nil
	}

	txn, err := e.Reconcile(ctx, transactionName, []VoucherAllocation{{
		VoucherType: voucherType,
		VoucherName: voucherName,
		Amount:      amount,
	}}, false)
	if err != nil {
		return nil, err
	}
	return &VoucherOutcome{Transaction: txn}, nil
}

// validateBatch loads every referenced voucher and enforces the batch
// rules: each voucher submitted, no voucher referenced twice unless
// multi-party reconciliation is requested with distinct parties, and
// no two vouchers of the same type sharing a reference number.
func (e *Executor) validateBatch(ctx context.Context, vouchers []VoucherAllocation, allowMultiParty bool) (map[storage.VoucherKey]*storage.VoucherRow, error) {
	rows := make(map[storage.VoucherKey]*storage.VoucherRow, len(vouchers))
	seenParties := make(map[storage.VoucherKey]map[string]bool)
	seenRef := make(map[string]bool)

	for _, v := range vouchers {
		key := storage.VoucherKey{Type: v.VoucherType, Name: v.VoucherName}

		if parties, dup := seenParties[key]; dup {
			if !allowMultiParty || parties[v.Party] {
				return nil, validationf("%s %s referenced more than once", v.VoucherType, v.VoucherName)
			}
			parties[v.Party] = true
		} else {
			seenParties[key] = map[string]bool{v.Party: true}
		}

		row, ok := rows[key]
		if !ok {
			var err error
			row, err = e.store.GetVoucher(ctx, v.VoucherType, v.VoucherName)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return nil, &NotFoundError{VoucherType: v.VoucherType, Name: v.VoucherName}
				}
				return nil, fmt.Errorf("load %s %s: %w", v.VoucherType, v.VoucherName, err)
			}
			if row.Docstatus != storage.DocstatusSubmitted {
				return nil, &ConcurrencyError{
					VoucherType: v.VoucherType,
					Name:        v.VoucherName,
					Reason:      "voucher is not submitted",
				}
			}
			rows[key] = row

			if row.ReferenceNo != "" {
				refKey := string(v.VoucherType) + "\x00" + row.ReferenceNo
				if seenRef[refKey] {
					return nil, validationf("duplicate reference %q across %s vouchers",
						row.ReferenceNo, v.VoucherType)
				}
				seenRef[refKey] = true
			}
		}
	}
	return rows, nil
}

// buildAllocations clamps each requested amount to the voucher's
// remaining claimable amount on the ledger account and materializes
// allocation rows. Fully consumed vouchers contribute nothing.
func (e *Executor) buildAllocations(ctx context.Context, txn *storage.BankTransaction, glAccount string, vouchers []VoucherAllocation, rows map[storage.VoucherKey]*storage.VoucherRow) ([]storage.Allocation, error) {
	keys := make([]storage.VoucherKey, 0, len(rows))
	for key := range rows {
		keys = append(keys, key)
	}
	totals, err := e.store.TotalAllocated(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("look up prior allocations: %w", err)
	}

	remaining := make(map[storage.VoucherKey]float64, len(rows))
	for key, row := range rows {
		left := row.Amount
		for _, total := range totals[key] {
			if total.GLAccount == glAccount {
				left -= total.Total
			}
		}
		remaining[key] = left
	}

	requested := make([]float64, len(vouchers))
	allZero := true
	for i, v := range vouchers {
		requested[i] = v.Amount
		if v.Amount > 0 {
			allZero = false
		}
	}
	// A batch with no amounts asks for a pro-rata spread of the
	// transaction's open amount across the vouchers, weighted by what
	// each can still claim.
	if allZero && len(vouchers) > 0 {
		weights := make([]float64, len(vouchers))
		for i, v := range vouchers {
			weights[i] = remaining[storage.VoucherKey{Type: v.VoucherType, Name: v.VoucherName}]
		}
		requested = spreadProRata(txn.UnallocatedAmount, weights)
	}

	now := time.Now().UTC()
	var allocations []storage.Allocation
	for i, v := range vouchers {
		key := storage.VoucherKey{Type: v.VoucherType, Name: v.VoucherName}
		amount := requested[i]
		if amount > remaining[key] {
			amount = remaining[key]
		}
		if amount <= storage.Epsilon {
			continue
		}
		remaining[key] -= amount
		allocations = append(allocations, storage.Allocation{
			ID:              uuid.NewString(),
			BankTransaction: txn.Name,
			VoucherType:     v.VoucherType,
			VoucherName:     v.VoucherName,
			AllocatedAmount: amount,
			GLAccount:       glAccount,
			CreatedAt:       now,
		})
	}
	return allocations, nil
}

// transactionStatus derives the status from the unallocated amount:
// Reconciled at (or within epsilon of) zero, Partially Reconciled when
// some but not all of the original amount is allocated.
func transactionStatus(txn *storage.BankTransaction) storage.BankTransactionStatus {
	switch {
	case txn.UnallocatedAmount <= storage.Epsilon:
		return storage.StatusReconciled
	case txn.UnallocatedAmount < txn.Amount():
		return storage.StatusPartiallyReconciled
	default:
		return storage.StatusUnreconciled
	}
}
