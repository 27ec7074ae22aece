package recon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finledger/bankrecon/internal/domain/matching"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// AutoResult collects the outcome sets of one auto-reconciliation run.
// The human-readable summary is derived from these sets, never the
// other way around.
type AutoResult struct {
	Reconciled          []string `json:"reconciled"`
	PartiallyReconciled []string `json:"partially_reconciled"`
	Skipped             []string `json:"skipped"`
	Failed              []string `json:"failed"`
}

// Summary renders the run outcome as a one-line count report.
func (r *AutoResult) Summary() string {
	return fmt.Sprintf("%d reconciled, %d partially reconciled, %d skipped, %d failed",
		len(r.Reconciled), len(r.PartiallyReconciled), len(r.Skipped), len(r.Failed))
}

// AutoReconciler drives unattended reconciliation: for every open
// transaction in a date range it looks for payment entries and journal
// entries already carrying the transaction's reference number and
// applies them.
type AutoReconciler struct {
	store    storage.LedgerStore
	matcher  *matching.Matcher
	executor *Executor
	logger   *slog.Logger
}

// NewAutoReconciler creates an auto-reconciliation loop over the given
// matcher and executor.
func NewAutoReconciler(store storage.LedgerStore, matcher *matching.Matcher, executor *Executor, logger *slog.Logger) *AutoReconciler {
	return &AutoReconciler{
		store:    store,
		matcher:  matcher,
		executor: executor,
		logger:   logger,
	}
}

// Run processes all unreconciled transactions for a bank account
// within the posting-date range. A failure on one transaction never
// aborts the loop; failed transactions are reported separately from
// those skipped for lack of candidates.
func (a *AutoReconciler) Run(ctx context.Context, bankAccount string, dates matching.DateRange, referenceDates *matching.DateRange) (*AutoResult, error) {
	transactions, err := a.store.ListBankTransactions(ctx, storage.BankTransactionFilters{
		BankAccount:     bankAccount,
		FromDate:        dates.From,
		ToDate:          dates.To,
		OnlyUnallocated: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list open transactions: %w", err)
	}

	result := &AutoResult{}
	for _, txn := range transactions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		a.processOne(ctx, txn, dates, referenceDates, result)
	}

	a.logger.Info("auto-reconcile run complete",
		"bank_account", bankAccount,
		"summary", result.Summary())
	return result, nil
}

func (a *AutoReconciler) processOne(ctx context.Context, txn *storage.BankTransaction, dates matching.DateRange, referenceDates *matching.DateRange, result *AutoResult) {
	if txn.UnallocatedAmount <= storage.Epsilon {
		return
	}
	if txn.ReferenceNumber == "" {
		result.Skipped = append(result.Skipped, txn.Name)
		return
	}

	candidates, err := a.matcher.FindCandidates(ctx, matching.Request{
		TransactionName: txn.Name,
		DocumentTypes: matching.DocumentTypes{
			PaymentEntry: true,
			JournalEntry: true,
		},
		PostingDateRange:   dates,
		ReferenceDateRange: referenceDates,
		AutoReconcile:      true,
	})
	if err != nil {
		a.logger.Warn("auto-reconcile candidate search failed",
			"transaction", txn.Name, "error", err)
		result.Failed = append(result.Failed, txn.Name)
		return
	}
	if len(candidates) == 0 {
		result.Skipped = append(result.Skipped, txn.Name)
		return
	}

	vouchers := make([]VoucherAllocation, 0, len(candidates))
	for _, c := range candidates {
		if c.Amount <= storage.Epsilon {
			continue
		}
		vouchers = append(vouchers, VoucherAllocation{
			VoucherType: c.VoucherType,
			VoucherName: c.Name,
			Amount:      c.Amount,
		})
	}
	if len(vouchers) == 0 {
		result.Skipped = append(result.Skipped, txn.Name)
		return
	}

	before := txn.UnallocatedAmount
	updated, err := a.executor.Reconcile(ctx, txn.Name, vouchers, false)
	if err != nil {
		a.logger.Warn("auto-reconcile failed",
			"transaction", txn.Name, "error", err)
		result.Failed = append(result.Failed, txn.Name)
		return
	}

	switch {
	case updated.UnallocatedAmount <= storage.Epsilon:
		result.Reconciled = append(result.Reconciled, txn.Name)
	case updated.UnallocatedAmount < before:
		result.PartiallyReconciled = append(result.PartiallyReconciled, txn.Name)
	}
}
