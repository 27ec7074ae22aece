// Package matching generates ranked voucher candidates for bank
// transactions.
//
// A match request fans out to one query per enabled voucher variant
// (payments, journal entries, invoices, expense claims, loan
// movements, peer bank transactions), ranks every row with a
// composite score, merges the per-variant lists, and nets out amounts
// already allocated on the same ledger account so the caller sees the
// true remaining claimable amount.
//
// Example usage:
//
//	m := matching.NewMatcher(store, matching.AllowAll{}, logger)
//	candidates, err := m.FindCandidates(ctx, matching.Request{
//		TransactionName: "BT-001",
//		DocumentTypes:   matching.DocumentTypes{PaymentEntry: true, SalesInvoice: true},
//	})
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// Matcher federates candidate queries across voucher variants.
type Matcher struct {
	store      storage.LedgerStore
	auth       Authorizer
	logger     *slog.Logger
	extensions []QueryExtension
}

// NewMatcher creates a matcher backed by the given store. The
// authorizer gates read access per voucher variant.
func NewMatcher(store storage.LedgerStore, auth Authorizer, logger *slog.Logger) *Matcher {
	return &Matcher{
		store:  store,
		auth:   auth,
		logger: logger,
	}
}

// RegisterExtension adds a query source for voucher variants beyond
// the built-in set. Extensions run after the built-in queries, in
// registration order.
func (m *Matcher) RegisterExtension(ext QueryExtension) {
	m.extensions = append(m.extensions, ext)
}

// FindCandidates returns ranked match candidates for a bank
// transaction, sorted by rank descending with stable discovery order
// on ties. Candidate amounts are net of prior allocations on the
// transaction's ledger account.
func (m *Matcher) FindCandidates(ctx context.Context, req Request) ([]Candidate, error) {
	txn, err := m.store.GetBankTransaction(ctx, req.TransactionName)
	if err != nil {
		return nil, fmt.Errorf("load bank transaction %s: %w", req.TransactionName, err)
	}

	in, err := m.buildInput(ctx, txn, req)
	if err != nil {
		return nil, err
	}

	plan := buildPlan(in, req.DocumentTypes)

	// Capability check before any query runs: a denied variant aborts
	// the whole request with no partial result
	for _, p := range plan {
		if !m.auth.CanRead(p.query.Type) {
			return nil, &PermissionError{VoucherType: p.query.Type}
		}
	}

	var candidates []Candidate
	for _, p := range plan {
		found, err := m.runQuery(ctx, in, p)
		if err != nil {
			return nil, fmt.Errorf("query %s candidates: %w", p.query.Type, err)
		}
		candidates = append(candidates, found...)
	}

	for _, ext := range m.extensions {
		found, err := ext.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
		candidates = append(candidates, found...)
	}

	applyDescriptionBonus(candidates, txn.Description)
	sortByRank(candidates)

	if err := m.subtractAllocations(ctx, in.GLAccount, candidates); err != nil {
		return nil, err
	}

	m.logger.Debug("candidate search complete",
		"transaction", txn.Name,
		"candidates", len(candidates))
	return candidates, nil
}

// buildInput resolves the transaction's ledger coordinates: GL account
// via the bank account, account currency and company currency.
func (m *Matcher) buildInput(ctx context.Context, txn *storage.BankTransaction, req Request) (Input, error) {
	bankAccount, err := m.store.GetBankAccount(ctx, txn.BankAccount)
	if err != nil {
		return Input{}, fmt.Errorf("resolve bank account %s: %w", txn.BankAccount, err)
	}
	account, err := m.store.GetAccount(ctx, bankAccount.GLAccount)
	if err != nil {
		return Input{}, fmt.Errorf("resolve ledger account %s: %w", bankAccount.GLAccount, err)
	}
	companyCurrency, err := m.store.GetCompanyCurrency(ctx, bankAccount.Company)
	if err != nil {
		return Input{}, fmt.Errorf("resolve company currency for %s: %w", bankAccount.Company, err)
	}

	in := Input{
		Transaction:        txn,
		GLAccount:          bankAccount.GLAccount,
		Company:            bankAccount.Company,
		Currency:           account.Currency,
		CompanyCurrency:    companyCurrency,
		Direction:          storage.DirectionWithdrawal,
		Amount:             txn.UnallocatedAmount,
		ExactMatch:         req.DocumentTypes.ExactMatch,
		ExactParty:         req.DocumentTypes.ExactParty,
		PostingDateRange:   req.PostingDateRange,
		ReferenceDateRange: req.ReferenceDateRange,
	}
	if txn.IsDeposit() {
		in.Direction = storage.DirectionDeposit
	}
	if req.AutoReconcile {
		in.ReferenceNo = txn.ReferenceNumber
	}
	return in, nil
}

// runQuery executes a single variant query and ranks its rows. The
// per-variant output is rank-ordered and capped at maxQueryResults.
func (m *Matcher) runQuery(ctx context.Context, in Input, p plannedQuery) ([]Candidate, error) {
	rows, err := m.store.QueryVouchers(ctx, p.query)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		c := candidateFromRow(row)
		rankCandidate(&c, in, rankOptions{skipRef: p.noRefRank, skipDate: p.noDateRank})
		if p.invoiceLike {
			scoreDescription(&c, in.Transaction.Description)
		}
		if p.query.Type == storage.VoucherBankTransaction &&
			math.Abs(row.UnallocatedAmount-in.Amount) <= storage.Epsilon {
			// A peer whose open amount mirrors ours is a likely
			// counter-leg of the same transfer
			c.Rank++
		}
		candidates = append(candidates, c)
	}

	sortByRank(candidates)
	if len(candidates) > maxQueryResults {
		candidates = candidates[:maxQueryResults]
	}
	return candidates, nil
}

// applyDescriptionBonus grants the reference-in-description point to
// candidates whose variant query did not already compute it.
func applyDescriptionBonus(candidates []Candidate, description string) {
	if description == "" {
		return
	}
	for i := range candidates {
		c := &candidates[i]
		if isInvoiceVariant(c.VoucherType) || c.RefInDescMatch {
			continue
		}
		// Exact containment of the trimmed reference, case-sensitive
		ref := strings.TrimSpace(c.ReferenceNo)
		if ref != "" && strings.Contains(description, ref) {
			c.Rank++
			c.RefInDescMatch = true
		}
	}
}

// subtractAllocations nets prior allocation totals on the target
// ledger account out of each candidate's claimable amount. Runs after
// ranking: ranks reflect gross amounts, offered amounts are net.
func (m *Matcher) subtractAllocations(ctx context.Context, glAccount string, candidates []Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	seen := make(map[storage.VoucherKey]bool, len(candidates))
	keys := make([]storage.VoucherKey, 0, len(candidates))
	for i := range candidates {
		key := candidates[i].Key()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	totals, err := m.store.TotalAllocated(ctx, keys)
	if err != nil {
		return fmt.Errorf("look up prior allocations: %w", err)
	}

	for i := range candidates {
		c := &candidates[i]
		for _, total := range totals[c.Key()] {
			if total.GLAccount == glAccount {
				c.Amount -= total.Total
			}
		}
		if c.Amount < 0 {
			c.Amount = 0
		}
	}
	return nil
}
