package matching

import (
	"context"
	"time"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// maxQueryResults bounds the candidate list returned per voucher variant
const maxQueryResults = 150

// DateRange bounds a query by an inclusive date window. A nil side
// leaves that side open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// DocumentTypes selects which voucher variants a match request fans
// out to, plus the modifier flags that tighten the per-variant filters.
type DocumentTypes struct {
	PaymentEntry     bool
	JournalEntry     bool
	SalesInvoice     bool
	PurchaseInvoice  bool
	ExpenseClaim     bool
	LoanDisbursement bool
	LoanRepayment    bool
	BankTransaction  bool

	// UnpaidInvoices switches invoice matching from settled documents
	// (POS sales invoices, paid purchase invoices) to outstanding ones.
	UnpaidInvoices bool

	// ExactMatch restricts the amount filter to exact equality with
	// the transaction amount instead of any positive amount.
	ExactMatch bool

	// ExactParty restricts candidates to the transaction's party.
	ExactParty bool
}

// Request describes one candidate search against a bank transaction.
type Request struct {
	TransactionName string
	DocumentTypes   DocumentTypes

	PostingDateRange DateRange

	// ReferenceDateRange, when set, filters by the voucher's
	// reference/cheque date instead of its posting date.
	ReferenceDateRange *DateRange

	// AutoReconcile restricts payment entries and journal entries to
	// those carrying the transaction's exact reference number. Set by
	// the unattended reconciliation loop, never ambient state.
	AutoReconcile bool
}

// Candidate is one ranked match proposal. Candidates are ephemeral:
// produced for a single request and never persisted.
type Candidate struct {
	VoucherType   storage.VoucherType `json:"voucher_type"`
	Name          string              `json:"name"`
	Amount        float64             `json:"amount"`
	ReferenceNo   string              `json:"reference_no,omitempty"`
	ReferenceDate *time.Time          `json:"reference_date,omitempty"`
	Party         string              `json:"party,omitempty"`
	PartyType     string              `json:"party_type,omitempty"`
	PartyName     string              `json:"party_name,omitempty"`
	PostingDate   time.Time           `json:"posting_date"`
	Currency      string              `json:"currency,omitempty"`

	Rank float64 `json:"rank"`

	ReferenceMatch  bool `json:"reference_match"`
	AmountMatch     bool `json:"amount_match"`
	PartyMatch      bool `json:"party_match"`
	DateMatch       bool `json:"date_match"`
	NameInDescMatch bool `json:"name_in_desc_match"`
	RefInDescMatch  bool `json:"ref_in_desc_match"`
}

// Key returns the candidate's voucher identity.
func (c *Candidate) Key() storage.VoucherKey {
	return storage.VoucherKey{Type: c.VoucherType, Name: c.Name}
}

// Input is the shared context every variant query receives: the
// transaction snapshot plus its resolved ledger coordinates.
type Input struct {
	Transaction     *storage.BankTransaction
	GLAccount       string
	Company         string
	Currency        string // currency of the GL account
	CompanyCurrency string
	Direction       storage.Direction

	// Amount is the match target: the transaction's unallocated
	// amount, so partially reconciled transactions match vouchers
	// covering the remainder rather than the gross value.
	Amount float64

	ExactMatch bool
	ExactParty bool

	PostingDateRange   DateRange
	ReferenceDateRange *DateRange

	// ReferenceNo, when non-empty, is applied as a hard equality
	// filter on reference-bearing variants (auto-reconcile mode).
	ReferenceNo string
}

// QueryExtension contributes candidates for voucher variants not built
// into the matcher. Extension results are merged, description-scored
// and sorted exactly like built-in variants.
type QueryExtension interface {
	Name() string
	Query(ctx context.Context, in Input) ([]Candidate, error)
}

// Authorizer answers whether the calling context may read a voucher
// variant. A failed check aborts the whole matching request.
type Authorizer interface {
	CanRead(voucherType storage.VoucherType) bool
}

// AllowAll is an Authorizer that permits every variant. Useful for
// trusted internal callers and tests.
type AllowAll struct{}

// CanRead implements Authorizer.
func (AllowAll) CanRead(storage.VoucherType) bool { return true }
