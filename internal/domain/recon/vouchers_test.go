package recon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

func newVoucherService(store *storage.MockLedgerStore) *VoucherService {
	logger := testLogger()
	return NewVoucherService(store, NewExecutor(store, logger), logger)
}

func TestCreatePaymentEntrySubmitsAndAllocates(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "REF-1")

	s := newVoucherService(store)
	pe, err := s.CreatePaymentEntry(context.Background(), CreatePaymentEntryRequest{
		TransactionName: "BT-001",
		PartyType:       "Customer",
		Party:           "CUST-001",
	})
	require.NoError(t, err)

	assert.Equal(t, "Receive", pe.PaymentType)
	assert.Equal(t, "Checking - AC", pe.PaidTo)
	assert.Equal(t, 500.0, pe.PaidAmount)
	assert.Equal(t, "REF-1", pe.ReferenceNo, "reference defaults to the transaction's")
	assert.Equal(t, storage.DocstatusSubmitted, pe.Docstatus)

	txn, err := store.GetBankTransaction(context.Background(), "BT-001")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusReconciled, txn.Status)
}

func TestCreatePaymentEntryDraftSkipsAllocation(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")

	s := newVoucherService(store)
	pe, err := s.CreatePaymentEntry(context.Background(), CreatePaymentEntryRequest{
		TransactionName: "BT-001",
		PartyType:       "Customer",
		Party:           "CUST-001",
		AllowEdit:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, storage.DocstatusDraft, pe.Docstatus)

	txn, err := store.GetBankTransaction(context.Background(), "BT-001")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnreconciled, txn.Status)
	assert.Equal(t, 500.0, txn.UnallocatedAmount)
}

func TestCreatePaymentEntryRequiresParty(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")

	s := newVoucherService(store)
	_, err := s.CreatePaymentEntry(context.Background(), CreatePaymentEntryRequest{
		TransactionName: "BT-001",
	})

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestCreatePaymentEntryCurrencyMismatch(t *testing.T) {
	store := newTestStore()
	txn := seedDeposit(store, "BT-001", 500, "")
	txn.Currency = "EUR"

	s := newVoucherService(store)
	_, err := s.CreatePaymentEntry(context.Background(), CreatePaymentEntryRequest{
		TransactionName: "BT-001",
		PartyType:       "Customer",
		Party:           "CUST-001",
	})

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestCreateJournalEntryBalancedLegs(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 750, "CHQ-7")
	store.Accounts["Sales - AC"] = &storage.Account{
		Name: "Sales - AC", Company: "Acme Corp", Currency: "USD", AccountType: "Income",
	}

	s := newVoucherService(store)
	je, err := s.CreateJournalEntry(context.Background(), CreateJournalEntryRequest{
		TransactionName: "BT-001",
		SecondAccount:   "Sales - AC",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bank Entry", je.VoucherType)
	assert.Equal(t, "CHQ-7", je.ChequeNo)
	assert.Equal(t, storage.DocstatusSubmitted, je.Docstatus)

	var bankLeg, counterLeg *storage.JournalEntryAccount
	for i := range store.JournalAccounts {
		leg := &store.JournalAccounts[i]
		if leg.JournalEntry != je.Name {
			continue
		}
		if leg.Account == "Checking - AC" {
			bankLeg = leg
		} else {
			counterLeg = leg
		}
	}
	require.NotNil(t, bankLeg)
	require.NotNil(t, counterLeg)
	assert.Equal(t, 750.0, bankLeg.DebitInAccountCurrency, "a deposit debits the bank account")
	assert.Equal(t, 750.0, counterLeg.CreditInAccountCurrency)

	txn, err := store.GetBankTransaction(context.Background(), "BT-001")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusReconciled, txn.Status)
}

func TestCreateJournalEntryReceivableRequiresParty(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	store.Accounts["Debtors - AC"] = &storage.Account{
		Name: "Debtors - AC", Company: "Acme Corp", Currency: "USD", AccountType: "Receivable",
	}

	s := newVoucherService(store)
	_, err := s.CreateJournalEntry(context.Background(), CreateJournalEntryRequest{
		TransactionName: "BT-001",
		SecondAccount:   "Debtors - AC",
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reason, "requires a party")
}

func TestCreateJournalEntryUnknownAccount(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")

	s := newVoucherService(store)
	_, err := s.CreateJournalEntry(context.Background(), CreateJournalEntryRequest{
		TransactionName: "BT-001",
		SecondAccount:   "Nope - AC",
	})

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestCreateVoucherFullyAllocatedTransaction(t *testing.T) {
	store := newTestStore()
	txn := seedDeposit(store, "BT-001", 500, "")
	txn.UnallocatedAmount = 0
	txn.AllocatedAmount = 500
	txn.Status = storage.StatusReconciled

	s := newVoucherService(store)
	_, err := s.CreatePaymentEntry(context.Background(), CreatePaymentEntryRequest{
		TransactionName: "BT-001",
		PartyType:       "Customer",
		Party:           "CUST-001",
	})

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestCreateJournalEntrySecondAccountCurrencyMismatch(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	store.Accounts["Euro Sales - AC"] = &storage.Account{
		Name: "Euro Sales - AC", Company: "Acme Corp", Currency: "EUR", AccountType: "Income",
	}

	s := newVoucherService(store)
	_, err := s.CreateJournalEntry(context.Background(), CreateJournalEntryRequest{
		TransactionName: "BT-001",
		SecondAccount:   "Euro Sales - AC",
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reason, "company currency")
}

func TestCreateVoucherAmbiguousDirectionRejectedBeforeDraft(t *testing.T) {
	store := newTestStore()
	txn := seedDeposit(store, "BT-001", 500, "")
	txn.Withdrawal = 200

	s := newVoucherService(store)
	_, err := s.CreatePaymentEntry(context.Background(), CreatePaymentEntryRequest{
		TransactionName: "BT-001",
		PartyType:       "Customer",
		Party:           "CUST-001",
		AllowEdit:       true,
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, store.PaymentEntries, "no draft may be written for an ambiguous transaction")

	store.Accounts["Sales - AC"] = &storage.Account{
		Name: "Sales - AC", Company: "Acme Corp", Currency: "USD", AccountType: "Income",
	}
	_, err = s.CreateJournalEntry(context.Background(), CreateJournalEntryRequest{
		TransactionName: "BT-001",
		SecondAccount:   "Sales - AC",
		AllowEdit:       true,
	})
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, store.JournalEntries)
}
