package storage

import (
	"time"
)

// Epsilon is the tolerance below which an unallocated amount counts as zero.
const Epsilon = 0.001

// Docstatus values follow the usual ledger lifecycle.
const (
	DocstatusDraft     = 0
	DocstatusSubmitted = 1
	DocstatusCancelled = 2
)

// BankTransactionStatus is the reconciliation state of a bank transaction.
type BankTransactionStatus string

const (
	StatusUnreconciled        BankTransactionStatus = "Unreconciled"
	StatusPartiallyReconciled BankTransactionStatus = "Partially Reconciled"
	StatusReconciled          BankTransactionStatus = "Reconciled"
)

// VoucherType identifies a voucher variant eligible for reconciliation.
type VoucherType string

const (
	VoucherPaymentEntry     VoucherType = "Payment Entry"
	VoucherJournalEntry     VoucherType = "Journal Entry"
	VoucherSalesInvoice     VoucherType = "Sales Invoice"
	VoucherPurchaseInvoice  VoucherType = "Purchase Invoice"
	VoucherExpenseClaim     VoucherType = "Expense Claim"
	VoucherLoanDisbursement VoucherType = "Loan Disbursement"
	VoucherLoanRepayment    VoucherType = "Loan Repayment"
	VoucherBankTransaction  VoucherType = "Bank Transaction"
)

// BankTransaction is a normalized bank statement row.
// Exactly one of Deposit/Withdrawal is non-zero for a valid transaction.
type BankTransaction struct {
	Name              string                `json:"name"`
	Date              time.Time             `json:"date"`
	Deposit           float64               `json:"deposit"`
	Withdrawal        float64               `json:"withdrawal"`
	Currency          string                `json:"currency"`
	BankAccount       string                `json:"bank_account"`
	Company           string                `json:"company"`
	ReferenceNumber   string                `json:"reference_number"`
	Description       string                `json:"description"`
	PartyType         string                `json:"party_type,omitempty"`
	Party             string                `json:"party,omitempty"`
	AllocatedAmount   float64               `json:"allocated_amount"`
	UnallocatedAmount float64               `json:"unallocated_amount"`
	Status            BankTransactionStatus `json:"status"`
	Docstatus         int                   `json:"docstatus"`
}

// Amount returns the absolute transaction value.
func (bt *BankTransaction) Amount() float64 {
	if bt.Deposit > 0.0 {
		return bt.Deposit
	}
	return bt.Withdrawal
}

// IsDeposit reports whether money flowed into the bank account.
func (bt *BankTransaction) IsDeposit() bool {
	return bt.Deposit > 0.0
}

// BankTransactionFilters narrows ListBankTransactions.
type BankTransactionFilters struct {
	BankAccount     string
	FromDate        *time.Time
	ToDate          *time.Time
	OrderBy         string // "date asc" (default) or "date desc"
	OnlyUnallocated bool   // unallocated_amount > Epsilon, docstatus submitted
}

// Allocation links a bank transaction to a voucher with an allocated amount.
type Allocation struct {
	ID              string    `json:"id"`
	BankTransaction string    `json:"bank_transaction"`
	VoucherType     VoucherType `json:"voucher_type"`
	VoucherName     string    `json:"voucher_name"`
	AllocatedAmount float64   `json:"allocated_amount"`
	GLAccount       string    `json:"gl_account"`
	CreatedAt       time.Time `json:"created_at"`
}

// VoucherKey identifies a voucher across variants.
type VoucherKey struct {
	Type VoucherType
	Name string
}

// VoucherRow is the projection of a voucher returned by candidate queries.
// Amount carries the claimable amount of the variant (paid or outstanding);
// for bank-transaction rows it carries the opposite-direction amount and
// UnallocatedAmount carries the remaining claimable amount.
type VoucherRow struct {
	DocType           VoucherType
	Name              string
	Amount            float64
	ReferenceNo       string
	ReferenceDate     *time.Time
	Party             string
	PartyType         string
	PartyName         string
	PostingDate       time.Time
	Currency          string
	UnallocatedAmount float64 // bank-transaction variant only
	Docstatus         int
}

// Direction selects which side of a bank transaction an amount matches.
type Direction int

const (
	DirectionDeposit Direction = iota
	DirectionWithdrawal
)

// PartyRef is a (party type, party) pair.
type PartyRef struct {
	PartyType string
	Party     string
}

// VoucherQuery carries the hard filters of one candidate query. Rank scoring
// happens outside the store, over the returned rows.
type VoucherQuery struct {
	Type      VoucherType
	GLAccount string
	Company   string
	Currency  string
	Direction Direction

	// BankAccount restricts the bank-transaction variant to peers of the
	// same bank account.
	BankAccount string

	// ExactAmount > 0 restricts the claimable amount to exact equality;
	// otherwise the amount must merely be non-zero.
	ExactAmount float64

	// Unpaid switches invoice variants to outstanding-amount matching.
	Unpaid      bool
	OnlyReturns bool

	FromDate          *time.Time
	ToDate            *time.Time
	ByReferenceDate   bool
	FromReferenceDate *time.Time
	ToReferenceDate   *time.Time

	// ReferenceNo, when set, is a hard equality filter (auto-reconcile mode).
	ReferenceNo string
	ExactParty  *PartyRef

	// ExcludeName excludes the source transaction when matching against
	// other bank transactions.
	ExcludeName string

	Limit int
}

// BankAccount maps a bank account to its GL account and company.
type BankAccount struct {
	Name      string `json:"name"`
	GLAccount string `json:"gl_account"`
	Company   string `json:"company"`
}

// Account is a GL account row.
type Account struct {
	Name        string `json:"name"`
	Company     string `json:"company"`
	Currency    string `json:"currency"`
	AccountType string `json:"account_type"`
}

// PaymentEntry is a payment voucher.
type PaymentEntry struct {
	Name                   string
	PaymentType            string // "Receive", "Pay" or "Internal Transfer"
	PostingDate            time.Time
	ReferenceNo            string
	ReferenceDate          *time.Time
	PartyType              string
	Party                  string
	PartyName              string
	PaidAmount             float64
	ReceivedAmount         float64
	PaidFrom               string
	PaidTo                 string
	PaidFromAccountCurrency string
	PaidToAccountCurrency  string
	ModeOfPayment          string
	Project                string
	CostCenter             string
	ClearanceDate          *time.Time
	Docstatus              int
}

// JournalEntry is a journal voucher header; amounts live on its account rows.
type JournalEntry struct {
	Name          string
	VoucherType   string
	PostingDate   time.Time
	ChequeNo      string
	ChequeDate    *time.Time
	PayToRecdFrom string
	UserRemark    string
	ModeOfPayment string
	ClearanceDate *time.Time
	Docstatus     int
}

// JournalEntryAccount is one leg of a journal entry.
type JournalEntryAccount struct {
	JournalEntry            string
	Account                 string
	PartyType               string
	Party                   string
	DebitInAccountCurrency  float64
	CreditInAccountCurrency float64
	AccountCurrency         string
	CostCenter              string
}

// SalesInvoice covers both unpaid invoices and POS invoices carrying their
// own payment rows.
type SalesInvoice struct {
	Name              string
	Customer          string
	CustomerName      string
	PostingDate       time.Time
	Currency          string
	Company           string
	OutstandingAmount float64
	IsReturn          bool
	IsPOS             bool
	Docstatus         int
}

// SalesInvoicePayment is a POS payment row on a sales invoice.
type SalesInvoicePayment struct {
	SalesInvoice  string
	Amount        float64
	Account       string
	ClearanceDate *time.Time
}

// PurchaseInvoice is a supplier bill, optionally paid directly from a bank
// account (is_paid).
type PurchaseInvoice struct {
	Name              string
	Supplier          string
	SupplierName      string
	PostingDate       time.Time
	BillNo            string
	BillDate          *time.Time
	Currency          string
	Company           string
	PaidAmount        float64
	OutstandingAmount float64
	IsPaid            bool
	IsReturn          bool
	CashBankAccount   string
	ClearanceDate     *time.Time
	Docstatus         int
}

// ExpenseClaim is an employee reimbursement claim.
type ExpenseClaim struct {
	Name                   string
	Employee               string
	EmployeeName           string
	PostingDate            time.Time
	Company                string
	TotalSanctionedAmount  float64
	TotalTaxesAndCharges   float64
	TotalAmountReimbursed  float64
	TotalAdvanceAmount     float64
	Status                 string
	Docstatus              int
}

// OutstandingAmount is the remaining reimbursable amount of the claim.
func (ec *ExpenseClaim) OutstandingAmount() float64 {
	return ec.TotalSanctionedAmount + ec.TotalTaxesAndCharges -
		ec.TotalAmountReimbursed - ec.TotalAdvanceAmount
}

// LoanDisbursement is a loan payout voucher.
type LoanDisbursement struct {
	Name                string
	ApplicantType       string
	Applicant           string
	DisbursedAmount     float64
	ReferenceNumber     string
	ReferenceDate       *time.Time
	DisbursementDate    time.Time
	DisbursementAccount string
	ClearanceDate       *time.Time
	Docstatus           int
}

// LoanRepayment is a loan installment voucher.
type LoanRepayment struct {
	Name            string
	ApplicantType   string
	Applicant       string
	AmountPaid      float64
	ReferenceNumber string
	ReferenceDate   *time.Time
	PostingDate     time.Time
	PaymentAccount  string
	RepayFromSalary bool
	ClearanceDate   *time.Time
	Docstatus       int
}
