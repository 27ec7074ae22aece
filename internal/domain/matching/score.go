package matching

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// amountScore grades how close a candidate amount is to the target.
// Exact equality (within epsilon) scores the full point; the score
// decays linearly with relative deviation and reaches zero at 50%
// deviation, so near-amount matches always outrank distant ones.
func amountScore(candidate, target float64) float64 {
	if target <= 0 || candidate <= 0 {
		return 0
	}
	diff := math.Abs(candidate - target)
	if diff <= storage.Epsilon {
		return 1
	}
	deviation := diff / target
	if deviation >= 0.5 {
		return 0
	}
	return 1 - 2*deviation
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// rankOptions gate sub-scores per voucher variant: unpaid invoice
// variants rank without the date sub-score, and variants whose
// reference field degenerates to the document name (sales invoices,
// expense claims) rank without reference equality.
type rankOptions struct {
	skipRef  bool
	skipDate bool
}

// rankCandidate computes the base rank for a candidate against the
// transaction: 1 plus sub-scores for reference equality, amount
// proximity against the transaction's unallocated amount, exact party
// and date coincidence. Description containment is scored separately
// because it is variant-dependent.
func rankCandidate(c *Candidate, in Input, opts rankOptions) {
	txn := in.Transaction
	rank := 1.0

	if !opts.skipRef && c.ReferenceNo != "" && c.ReferenceNo == txn.ReferenceNumber {
		rank++
		c.ReferenceMatch = true
	}

	score := amountScore(c.Amount, in.Amount)
	rank += score
	if score == 1 {
		c.AmountMatch = true
	}

	if txn.Party != "" && c.Party == txn.Party &&
		(txn.PartyType == "" || c.PartyType == txn.PartyType) {
		rank++
		c.PartyMatch = true
	}

	// Prefer the reference date when the voucher carries one
	if !opts.skipDate {
		matchDate := c.PostingDate
		if c.ReferenceDate != nil {
			matchDate = *c.ReferenceDate
		}
		if sameDay(matchDate, txn.Date) {
			rank++
			c.DateMatch = true
		}
	}

	c.Rank = rank
}

// scoreDescription adds the description-containment sub-scores for
// invoice-like variants: one point when the voucher name appears in
// the transaction description, one more when a distinct reference
// number appears too. A reference that degenerates to the name scores
// nothing extra to avoid double counting.
func scoreDescription(c *Candidate, description string) {
	desc := strings.ToLower(description)
	if desc == "" {
		return
	}
	if c.Name != "" && strings.Contains(desc, strings.ToLower(c.Name)) {
		c.Rank++
		c.NameInDescMatch = true
	}
	if c.ReferenceNo != "" && c.ReferenceNo != c.Name &&
		strings.Contains(desc, strings.ToLower(c.ReferenceNo)) {
		c.Rank++
		c.RefInDescMatch = true
	}
}

// isInvoiceVariant reports whether description containment was already
// scored during the variant query.
func isInvoiceVariant(t storage.VoucherType) bool {
	switch t {
	case storage.VoucherSalesInvoice, storage.VoucherPurchaseInvoice, storage.VoucherExpenseClaim:
		return true
	}
	return false
}

// sortByRank orders candidates by rank descending. The sort is stable:
// equal ranks keep their discovery order.
func sortByRank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rank > candidates[j].Rank
	})
}
