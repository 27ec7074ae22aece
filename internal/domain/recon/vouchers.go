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

// CreatePaymentEntryRequest describes a payment entry drafted from a
// bank transaction.
type CreatePaymentEntryRequest struct {
	TransactionName string     `json:"transaction_name"`
	PartyType       string     `json:"party_type"`
	Party           string     `json:"party"`
	ReferenceNumber string     `json:"reference_number,omitempty"`
	ReferenceDate   *time.Time `json:"reference_date,omitempty"`
	PostingDate     *time.Time `json:"posting_date,omitempty"`
	ModeOfPayment   string     `json:"mode_of_payment,omitempty"`
	Project         string     `json:"project,omitempty"`
	CostCenter      string     `json:"cost_center,omitempty"`

	// AllowEdit leaves the voucher as an editable draft instead of
	// submitting and allocating it immediately.
	AllowEdit bool `json:"allow_edit,omitempty"`
}

// CreateJournalEntryRequest describes a two-leg journal entry drafted
// from a bank transaction: one leg on the bank's ledger account, the
// counter leg on SecondAccount.
type CreateJournalEntryRequest struct {
	TransactionName string     `json:"transaction_name"`
	SecondAccount   string     `json:"second_account"`
	PartyType       string     `json:"party_type,omitempty"`
	Party           string     `json:"party,omitempty"`
	EntryType       string     `json:"entry_type,omitempty"`
	ReferenceNumber string     `json:"reference_number,omitempty"`
	ReferenceDate   *time.Time `json:"reference_date,omitempty"`
	PostingDate     *time.Time `json:"posting_date,omitempty"`
	ModeOfPayment   string     `json:"mode_of_payment,omitempty"`
	UserRemark      string     `json:"user_remark,omitempty"`

	AllowEdit bool `json:"allow_edit,omitempty"`
}

// VoucherService creates vouchers from bank transactions and, unless
// an editable draft was requested, submits and allocates them in one
// step.
type VoucherService struct {
	store    storage.LedgerStore
	executor *Executor
	logger   *slog.Logger
}

// NewVoucherService creates a voucher service.
func NewVoucherService(store storage.LedgerStore, executor *Executor, logger *slog.Logger) *VoucherService {
	return &VoucherService{store: store, executor: executor, logger: logger}
}

// CreatePaymentEntry drafts a payment entry covering the transaction's
// unallocated amount. Deposits become Receive entries paid into the
// bank's ledger account, withdrawals become Pay entries paid out of it.
func (s *VoucherService) CreatePaymentEntry(ctx context.Context, req CreatePaymentEntryRequest) (*storage.PaymentEntry, error) {
	if req.PartyType == "" || req.Party == "" {
		return nil, validationf("party type and party are required for a payment entry")
	}

	txn, glAccount, currency, err := s.resolveTransaction(ctx, req.TransactionName)
	if err != nil {
		return nil, err
	}
	if txn.Currency != "" && currency != txn.Currency {
		return nil, validationf("ledger account currency %s does not match transaction currency %s",
			currency, txn.Currency)
	}

	postingDate := txn.Date
	if req.PostingDate != nil {
		postingDate = *req.PostingDate
	}
	referenceNo := req.ReferenceNumber
	if referenceNo == "" {
		referenceNo = txn.ReferenceNumber
	}

	pe := &storage.PaymentEntry{
		Name:          fmt.Sprintf("PE-%s", uuid.NewString()),
		PaymentType:   "Pay",
		PostingDate:   postingDate,
		ReferenceNo:   referenceNo,
		ReferenceDate: req.ReferenceDate,
		PartyType:     req.PartyType,
		Party:         req.Party,
		PaidAmount:    txn.UnallocatedAmount,
		ModeOfPayment: req.ModeOfPayment,
		Project:       req.Project,
		CostCenter:    req.CostCenter,
		Docstatus:     storage.DocstatusDraft,
	}
	if txn.IsDeposit() {
		pe.PaymentType = "Receive"
		pe.PaidTo = glAccount
		pe.PaidToAccountCurrency = currency
	} else {
		pe.PaidFrom = glAccount
		pe.PaidFromAccountCurrency = currency
	}

	if err := s.store.SavePaymentEntry(ctx, pe); err != nil {
		return nil, fmt.Errorf("save payment entry: %w", err)
	}
	if req.AllowEdit {
		return pe, nil
	}

	if err := s.submitAndAllocate(ctx, txn, storage.VoucherPaymentEntry, pe.Name); err != nil {
		return nil, err
	}
	pe.Docstatus = storage.DocstatusSubmitted
	return pe, nil
}

// CreateJournalEntry drafts a balanced two-leg journal entry covering
// the transaction's unallocated amount. The counter account must carry
// a party when it is receivable or payable.
func (s *VoucherService) CreateJournalEntry(ctx context.Context, req CreateJournalEntryRequest) (*storage.JournalEntry, error) {
	if req.SecondAccount == "" {
		return nil, validationf("second account is required for a journal entry")
	}

	txn, glAccount, currency, err := s.resolveTransaction(ctx, req.TransactionName)
	if err != nil {
		return nil, err
	}

	second, err := s.store.GetAccount(ctx, req.SecondAccount)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, validationf("account %s does not exist", req.SecondAccount)
		}
		return nil, fmt.Errorf("resolve account %s: %w", req.SecondAccount, err)
	}
	if (second.AccountType == "Receivable" || second.AccountType == "Payable") && req.Party == "" {
		return nil, validationf("account %s is %s and requires a party",
			second.Name, second.AccountType)
	}
	companyCurrency, err := s.store.GetCompanyCurrency(ctx, txn.Company)
	if err != nil {
		return nil, fmt.Errorf("resolve company currency for %s: %w", txn.Company, err)
	}
	if second.Currency != companyCurrency {
		return nil, validationf("account %s is in %s, journal entries require the company currency %s",
			second.Name, second.Currency, companyCurrency)
	}

	postingDate := txn.Date
	if req.PostingDate != nil {
		postingDate = *req.PostingDate
	}
	referenceNo := req.ReferenceNumber
	if referenceNo == "" {
		referenceNo = txn.ReferenceNumber
	}
	entryType := req.EntryType
	if entryType == "" {
		entryType = "Bank Entry"
	}

	amount := txn.UnallocatedAmount
	je := &storage.JournalEntry{
		Name:          fmt.Sprintf("JE-%s", uuid.NewString()),
		VoucherType:   entryType,
		PostingDate:   postingDate,
		ChequeNo:      referenceNo,
		ChequeDate:    req.ReferenceDate,
		PayToRecdFrom: req.Party,
		UserRemark:    req.UserRemark,
		ModeOfPayment: req.ModeOfPayment,
		Docstatus:     storage.DocstatusDraft,
	}

	bankLeg := storage.JournalEntryAccount{
		JournalEntry:    je.Name,
		Account:         glAccount,
		AccountCurrency: currency,
	}
	counterLeg := storage.JournalEntryAccount{
		JournalEntry:    je.Name,
		Account:         second.Name,
		PartyType:       req.PartyType,
		Party:           req.Party,
		AccountCurrency: second.Currency,
	}
	if txn.IsDeposit() {
		bankLeg.DebitInAccountCurrency = amount
		counterLeg.CreditInAccountCurrency = amount
	} else {
		bankLeg.CreditInAccountCurrency = amount
		counterLeg.DebitInAccountCurrency = amount
	}

	if err := s.store.SaveJournalEntry(ctx, je, []storage.JournalEntryAccount{bankLeg, counterLeg}); err != nil {
		return nil, fmt.Errorf("save journal entry: %w", err)
	}
	if req.AllowEdit {
		return je, nil
	}

	if err := s.submitAndAllocate(ctx, txn, storage.VoucherJournalEntry, je.Name); err != nil {
		return nil, err
	}
	je.Docstatus = storage.DocstatusSubmitted
	return je, nil
}

func (s *VoucherService) resolveTransaction(ctx context.Context, name string) (*storage.BankTransaction, string, string, error) {
	txn, err := s.store.GetBankTransaction(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", "", &NotFoundError{VoucherType: storage.VoucherBankTransaction, Name: name}
		}
		return nil, "", "", fmt.Errorf("load bank transaction %s: %w", name, err)
	}
	if txn.Deposit > 0 && txn.Withdrawal > 0 {
		return nil, "", "", validationf("transaction %s has both deposit and withdrawal set", name)
	}
	if txn.UnallocatedAmount <= storage.Epsilon {
		return nil, "", "", validationf("transaction %s has no unallocated amount left", name)
	}

	bankAccount, err := s.store.GetBankAccount(ctx, txn.BankAccount)
	if err != nil {
		return nil, "", "", fmt.Errorf("resolve bank account %s: %w", txn.BankAccount, err)
	}
	account, err := s.store.GetAccount(ctx, bankAccount.GLAccount)
	if err != nil {
		return nil, "", "", fmt.Errorf("resolve ledger account %s: %w", bankAccount.GLAccount, err)
	}
	return txn, bankAccount.GLAccount, account.Currency, nil
}

// submitAndAllocate finalizes a freshly created voucher and allocates
// it against its transaction. The single-voucher path tolerates the
// voucher having been deleted or reverted in the meantime.
func (s *VoucherService) submitAndAllocate(ctx context.Context, txn *storage.BankTransaction, voucherType storage.VoucherType, name string) error {
	if err := s.store.SubmitVoucher(ctx, voucherType, name); err != nil {
		return fmt.Errorf("submit %s %s: %w", voucherType, name, err)
	}
	outcome, err := s.executor.ReconcileVoucher(ctx, txn.Name, txn.UnallocatedAmount, voucherType, name)
	if err != nil {
		return err
	}
	if outcome.Deleted {
		s.logger.Warn("voucher deleted before allocation",
			"voucher_type", voucherType, "voucher", name)
	}
	return nil
}
