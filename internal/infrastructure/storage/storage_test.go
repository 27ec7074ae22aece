package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCompany(t *testing.T, s *Storage) {
	t.Helper()
	_, err := s.DB().Exec(`INSERT INTO companies (name, currency) VALUES ('Acme Corp', 'USD')`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO accounts (name, company, currency, account_type) VALUES
		('Checking - AC', 'Acme Corp', 'USD', 'Bank')`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO bank_accounts (name, gl_account, company) VALUES
		('Main Checking', 'Checking - AC', 'Acme Corp')`)
	require.NoError(t, err)
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func testTransaction(name string, deposit, withdrawal float64) *BankTransaction {
	amount := deposit
	if deposit == 0 {
		amount = withdrawal
	}
	return &BankTransaction{
		Name:              name,
		Date:              date("2025-03-10"),
		Deposit:           deposit,
		Withdrawal:        withdrawal,
		Currency:          "USD",
		BankAccount:       "Main Checking",
		Company:           "Acme Corp",
		ReferenceNumber:   "REF-" + name,
		Description:       "wire transfer " + name,
		AllocatedAmount:   0,
		UnallocatedAmount: amount,
		Status:            StatusUnreconciled,
		Docstatus:         DocstatusSubmitted,
	}
}

func TestInsertBankTransactionsSkipsExisting(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	inserted, err := s.InsertBankTransactions(ctx, []*BankTransaction{
		testTransaction("BT-001", 500, 0),
		testTransaction("BT-002", 0, 250),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Re-importing the same rows plus one new one only adds the new one
	inserted, err = s.InsertBankTransactions(ctx, []*BankTransaction{
		testTransaction("BT-001", 500, 0),
		testTransaction("BT-003", 125, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	all, err := s.ListBankTransactions(ctx, BankTransactionFilters{BankAccount: "Main Checking"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListBankTransactionsOnlyUnallocated(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	open := testTransaction("BT-OPEN", 500, 0)
	done := testTransaction("BT-DONE", 300, 0)
	done.AllocatedAmount = 300
	done.UnallocatedAmount = 0
	done.Status = StatusReconciled

	_, err := s.InsertBankTransactions(ctx, []*BankTransaction{open, done})
	require.NoError(t, err)

	result, err := s.ListBankTransactions(ctx, BankTransactionFilters{OnlyUnallocated: true})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "BT-OPEN", result[0].Name)
}

func TestQueryPaymentEntries(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	refDate := date("2025-03-09")
	pe := &PaymentEntry{
		Name:                  "PE-001",
		PaymentType:           "Receive",
		PostingDate:           date("2025-03-10"),
		ReferenceNo:           "REF-BT-001",
		ReferenceDate:         &refDate,
		PartyType:             "Customer",
		Party:                 "CUST-001",
		PartyName:             "Globex",
		PaidAmount:            500,
		ReceivedAmount:        500,
		PaidTo:                "Checking - AC",
		PaidToAccountCurrency: "USD",
		Docstatus:             DocstatusSubmitted,
	}
	require.NoError(t, s.SavePaymentEntry(ctx, pe))

	// A cleared entry never matches
	cleared := *pe
	cleared.Name = "PE-002"
	cleared.ClearanceDate = &refDate
	require.NoError(t, s.SavePaymentEntry(ctx, &cleared))

	// A Pay entry is the wrong direction for a deposit
	outbound := *pe
	outbound.Name = "PE-003"
	outbound.PaymentType = "Pay"
	outbound.PaidFrom = "Checking - AC"
	outbound.PaidFromAccountCurrency = "USD"
	require.NoError(t, s.SavePaymentEntry(ctx, &outbound))

	rows, err := s.QueryVouchers(ctx, VoucherQuery{
		Type:      VoucherPaymentEntry,
		GLAccount: "Checking - AC",
		Direction: DirectionDeposit,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "PE-001", rows[0].Name)
	assert.Equal(t, 500.0, rows[0].Amount)
	assert.Equal(t, "REF-BT-001", rows[0].ReferenceNo)
	assert.Equal(t, "USD", rows[0].Currency)
	require.NotNil(t, rows[0].ReferenceDate)
	assert.Equal(t, refDate, *rows[0].ReferenceDate)
}

func TestQueryPaymentEntriesInternalTransferBothDirections(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	pe := &PaymentEntry{
		Name:                    "PE-ITR",
		PaymentType:             "Internal Transfer",
		PostingDate:             date("2025-03-10"),
		PaidAmount:              900,
		PaidFrom:                "Checking - AC",
		PaidTo:                  "Savings - AC",
		PaidFromAccountCurrency: "USD",
		PaidToAccountCurrency:   "USD",
		Docstatus:               DocstatusSubmitted,
	}
	require.NoError(t, s.SavePaymentEntry(ctx, pe))

	rows, err := s.QueryVouchers(ctx, VoucherQuery{
		Type:      VoucherPaymentEntry,
		GLAccount: "Checking - AC",
		Direction: DirectionWithdrawal,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "PE-ITR", rows[0].Name)
}

func TestQueryPaymentEntriesExactReferenceFilter(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	for _, ref := range []string{"REF-A", "REF-B"} {
		pe := &PaymentEntry{
			Name:                  "PE-" + ref,
			PaymentType:           "Receive",
			PostingDate:           date("2025-03-10"),
			ReferenceNo:           ref,
			PaidAmount:            100,
			PaidTo:                "Checking - AC",
			PaidToAccountCurrency: "USD",
			Docstatus:             DocstatusSubmitted,
		}
		require.NoError(t, s.SavePaymentEntry(ctx, pe))
	}

	rows, err := s.QueryVouchers(ctx, VoucherQuery{
		Type:        VoucherPaymentEntry,
		GLAccount:   "Checking - AC",
		Direction:   DirectionDeposit,
		ReferenceNo: "REF-B",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "PE-REF-B", rows[0].Name)
}

func TestQueryJournalEntriesExcludesOpeningEntry(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	je := &JournalEntry{
		Name:        "JE-001",
		VoucherType: "Bank Entry",
		PostingDate: date("2025-03-10"),
		ChequeNo:    "CHQ-42",
		Docstatus:   DocstatusSubmitted,
	}
	accounts := []JournalEntryAccount{{
		JournalEntry:            "JE-001",
		Account:                 "Checking - AC",
		CreditInAccountCurrency: 750,
		AccountCurrency:         "USD",
	}}
	require.NoError(t, s.SaveJournalEntry(ctx, je, accounts))

	opening := &JournalEntry{
		Name:        "JE-OPEN",
		VoucherType: "Opening Entry",
		PostingDate: date("2025-01-01"),
		Docstatus:   DocstatusSubmitted,
	}
	require.NoError(t, s.SaveJournalEntry(ctx, opening, []JournalEntryAccount{{
		JournalEntry:            "JE-OPEN",
		Account:                 "Checking - AC",
		CreditInAccountCurrency: 10000,
		AccountCurrency:         "USD",
	}}))

	rows, err := s.QueryVouchers(ctx, VoucherQuery{
		Type:      VoucherJournalEntry,
		GLAccount: "Checking - AC",
		Direction: DirectionWithdrawal,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "JE-001", rows[0].Name)
	assert.Equal(t, 750.0, rows[0].Amount)
	assert.Equal(t, "CHQ-42", rows[0].ReferenceNo)
}

func TestQueryBankTransactionsExcludesSelfAndReconciled(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	self := testTransaction("BT-SELF", 500, 0)
	peer := testTransaction("BT-PEER", 0, 500)
	settled := testTransaction("BT-SETTLED", 0, 500)
	settled.Status = StatusReconciled

	_, err := s.InsertBankTransactions(ctx, []*BankTransaction{self, peer, settled})
	require.NoError(t, err)

	rows, err := s.QueryVouchers(ctx, VoucherQuery{
		Type:        VoucherBankTransaction,
		BankAccount: "Main Checking",
		Direction:   DirectionDeposit,
		ExcludeName: "BT-SELF",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BT-PEER", rows[0].Name)
	assert.Equal(t, 500.0, rows[0].Amount)
	assert.Equal(t, 500.0, rows[0].UnallocatedAmount)
}

func TestApplyReconciliationPersistsAndClears(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	txn := testTransaction("BT-001", 500, 0)
	_, err := s.InsertBankTransactions(ctx, []*BankTransaction{txn})
	require.NoError(t, err)

	pe := &PaymentEntry{
		Name:                  "PE-001",
		PaymentType:           "Receive",
		PostingDate:           date("2025-03-10"),
		PaidAmount:            500,
		PaidTo:                "Checking - AC",
		PaidToAccountCurrency: "USD",
		Docstatus:             DocstatusSubmitted,
	}
	require.NoError(t, s.SavePaymentEntry(ctx, pe))

	txn.AllocatedAmount = 500
	txn.UnallocatedAmount = 0
	txn.Status = StatusReconciled
	err = s.ApplyReconciliation(ctx, txn, 500, []Allocation{{
		ID:              "alloc-1",
		BankTransaction: "BT-001",
		VoucherType:     VoucherPaymentEntry,
		VoucherName:     "PE-001",
		AllocatedAmount: 500,
		GLAccount:       "Checking - AC",
	}})
	require.NoError(t, err)

	got, err := s.GetBankTransaction(ctx, "BT-001")
	require.NoError(t, err)
	assert.Equal(t, StatusReconciled, got.Status)
	assert.Equal(t, 500.0, got.AllocatedAmount)
	assert.Equal(t, 0.0, got.UnallocatedAmount)

	allocations, err := s.ListAllocations(ctx, "BT-001")
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, VoucherPaymentEntry, allocations[0].VoucherType)

	// Fully consumed payment entry gets a clearance date and stops
	// matching future queries
	rows, err := s.QueryVouchers(ctx, VoucherQuery{
		Type:      VoucherPaymentEntry,
		GLAccount: "Checking - AC",
		Direction: DirectionDeposit,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestApplyReconciliationPartialLeavesVoucherOpen(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	txn := testTransaction("BT-001", 200, 0)
	_, err := s.InsertBankTransactions(ctx, []*BankTransaction{txn})
	require.NoError(t, err)

	pe := &PaymentEntry{
		Name:                  "PE-001",
		PaymentType:           "Receive",
		PostingDate:           date("2025-03-10"),
		PaidAmount:            500,
		PaidTo:                "Checking - AC",
		PaidToAccountCurrency: "USD",
		Docstatus:             DocstatusSubmitted,
	}
	require.NoError(t, s.SavePaymentEntry(ctx, pe))

	txn.AllocatedAmount = 200
	txn.UnallocatedAmount = 0
	txn.Status = StatusReconciled
	err = s.ApplyReconciliation(ctx, txn, 200, []Allocation{{
		ID:              "alloc-1",
		BankTransaction: "BT-001",
		VoucherType:     VoucherPaymentEntry,
		VoucherName:     "PE-001",
		AllocatedAmount: 200,
		GLAccount:       "Checking - AC",
	}})
	require.NoError(t, err)

	// 200 of 500 claimed: no clearance date yet
	rows, err := s.QueryVouchers(ctx, VoucherQuery{
		Type:      VoucherPaymentEntry,
		GLAccount: "Checking - AC",
		Direction: DirectionDeposit,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "PE-001", rows[0].Name)
}

func TestApplyReconciliationMissingTransaction(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)

	txn := testTransaction("BT-MISSING", 100, 0)
	err := s.ApplyReconciliation(context.Background(), txn, 100, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyReconciliationStaleUnallocatedRejected(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	txn := testTransaction("BT-001", 500, 0)
	_, err := s.InsertBankTransactions(ctx, []*BankTransaction{txn})
	require.NoError(t, err)

	// Caller clamped against a reading of 300, but the row still holds 500.
	txn.AllocatedAmount = 300
	txn.UnallocatedAmount = 200
	err = s.ApplyReconciliation(ctx, txn, 300, []Allocation{{
		ID:              "alloc-1",
		BankTransaction: "BT-001",
		VoucherType:     VoucherPaymentEntry,
		VoucherName:     "PE-001",
		AllocatedAmount: 300,
		GLAccount:       "Checking - AC",
	}})
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := s.GetBankTransaction(ctx, "BT-001")
	require.NoError(t, err)
	assert.Equal(t, 500.0, stored.UnallocatedAmount)
	assert.Equal(t, 0.0, stored.AllocatedAmount)
}

func TestTotalAllocatedGroupsByAccount(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)
	ctx := context.Background()

	txn1 := testTransaction("BT-001", 300, 0)
	txn2 := testTransaction("BT-002", 200, 0)
	_, err := s.InsertBankTransactions(ctx, []*BankTransaction{txn1, txn2})
	require.NoError(t, err)

	je := &JournalEntry{Name: "JE-001", PostingDate: date("2025-03-10"), Docstatus: DocstatusSubmitted}
	require.NoError(t, s.SaveJournalEntry(ctx, je, []JournalEntryAccount{{
		JournalEntry:           "JE-001",
		Account:                "Checking - AC",
		DebitInAccountCurrency: 1000,
		AccountCurrency:        "USD",
	}}))

	for i, txn := range []*BankTransaction{txn1, txn2} {
		txn.AllocatedAmount = txn.Deposit
		txn.UnallocatedAmount = 0
		txn.Status = StatusReconciled
		err = s.ApplyReconciliation(ctx, txn, txn.Deposit, []Allocation{{
			ID:              "alloc-" + txn.Name,
			BankTransaction: txn.Name,
			VoucherType:     VoucherJournalEntry,
			VoucherName:     "JE-001",
			AllocatedAmount: txn.Deposit,
			GLAccount:       "Checking - AC",
		}})
		require.NoError(t, err, "allocation %d", i)
	}

	key := VoucherKey{Type: VoucherJournalEntry, Name: "JE-001"}
	totals, err := s.TotalAllocated(ctx, []VoucherKey{key})
	require.NoError(t, err)
	require.Len(t, totals[key], 1)
	assert.Equal(t, "Checking - AC", totals[key][0].GLAccount)
	assert.Equal(t, 500.0, totals[key][0].Total)
}

func TestGetVoucherNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetVoucher(context.Background(), VoucherSalesInvoice, "SINV-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetCompanyCurrency(t *testing.T) {
	s := newTestStorage(t)
	seedCompany(t, s)

	currency, err := s.GetCompanyCurrency(context.Background(), "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, "USD", currency)

	_, err = s.GetCompanyCurrency(context.Background(), "Unknown Corp")
	assert.ErrorIs(t, err, ErrNotFound)
}
