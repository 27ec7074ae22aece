package recon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestStore() *storage.MockLedgerStore {
	store := storage.NewMockLedgerStore()
	store.Companies["Acme Corp"] = "USD"
	store.Accounts["Checking - AC"] = &storage.Account{
		Name: "Checking - AC", Company: "Acme Corp", Currency: "USD", AccountType: "Bank",
	}
	store.BankAccounts["Main Checking"] = &storage.BankAccount{
		Name: "Main Checking", GLAccount: "Checking - AC", Company: "Acme Corp",
	}
	return store
}

func seedDeposit(store *storage.MockLedgerStore, name string, amount float64, reference string) *storage.BankTransaction {
	txn := &storage.BankTransaction{
		Name:              name,
		Date:              date("2025-03-10"),
		Deposit:           amount,
		Currency:          "USD",
		BankAccount:       "Main Checking",
		Company:           "Acme Corp",
		ReferenceNumber:   reference,
		UnallocatedAmount: amount,
		Status:            storage.StatusUnreconciled,
		Docstatus:         storage.DocstatusSubmitted,
	}
	store.BankTransactions[name] = txn
	return txn
}

func seedReceivePayment(store *storage.MockLedgerStore, name string, amount float64, reference string) {
	store.PaymentEntries[name] = &storage.PaymentEntry{
		Name:                  name,
		PaymentType:           "Receive",
		PostingDate:           date("2025-03-08"),
		ReferenceNo:           reference,
		PaidAmount:            amount,
		PaidTo:                "Checking - AC",
		PaidToAccountCurrency: "USD",
		Docstatus:             storage.DocstatusSubmitted,
	}
}

func TestReconcileFullAllocation(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "REF-1")
	seedReceivePayment(store, "PE-001", 500, "REF-1")

	e := NewExecutor(store, testLogger())
	txn, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{{
		VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 500,
	}}, false)
	require.NoError(t, err)

	assert.Equal(t, storage.StatusReconciled, txn.Status)
	assert.Equal(t, 0.0, txn.UnallocatedAmount)
	assert.Equal(t, 500.0, txn.AllocatedAmount)

	allocations, err := store.ListAllocations(context.Background(), "BT-001")
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "Checking - AC", allocations[0].GLAccount)
}

func TestReconcilePartialAllocation(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 300, "")
	seedReceivePayment(store, "PE-001", 100, "")

	e := NewExecutor(store, testLogger())
	txn, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{{
		VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 100,
	}}, false)
	require.NoError(t, err)

	assert.Equal(t, storage.StatusPartiallyReconciled, txn.Status)
	assert.Equal(t, 200.0, txn.UnallocatedAmount)
}

func TestReconcileIdempotentNeverOverAllocates(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	seedDeposit(store, "BT-002", 500, "")
	seedReceivePayment(store, "PE-001", 500, "")

	e := NewExecutor(store, testLogger())
	ctx := context.Background()

	_, err := e.Reconcile(ctx, "BT-001", []VoucherAllocation{{
		VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 500,
	}}, false)
	require.NoError(t, err)

	// Voucher is fully consumed: a second attempt from another
	// transaction allocates nothing
	txn, err := e.Reconcile(ctx, "BT-002", []VoucherAllocation{{
		VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 500,
	}}, false)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnreconciled, txn.Status)
	assert.Equal(t, 500.0, txn.UnallocatedAmount)

	key := storage.VoucherKey{Type: storage.VoucherPaymentEntry, Name: "PE-001"}
	totals, err := store.TotalAllocated(ctx, []storage.VoucherKey{key})
	require.NoError(t, err)
	require.Len(t, totals[key], 1)
	assert.Equal(t, 500.0, totals[key][0].Total, "total allocated never exceeds the claimable amount")
}

func TestReconcileClampsToRemainingClaimable(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	seedReceivePayment(store, "PE-001", 200, "")

	e := NewExecutor(store, testLogger())
	txn, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{{
		VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 450,
	}}, false)
	require.NoError(t, err)

	assert.Equal(t, 300.0, txn.UnallocatedAmount, "allocation clamps to the voucher's claimable amount")
	assert.Equal(t, storage.StatusPartiallyReconciled, txn.Status)
}

func TestReconcileRejectsDuplicateVoucher(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	seedReceivePayment(store, "PE-001", 500, "")

	e := NewExecutor(store, testLogger())
	_, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 250},
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 250},
	}, false)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestReconcileAllowsDuplicateVoucherWithDistinctParties(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	seedReceivePayment(store, "PE-001", 500, "")

	e := NewExecutor(store, testLogger())
	txn, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 250, Party: "CUST-001"},
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 250, Party: "CUST-002"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusReconciled, txn.Status)
}

func TestReconcileRejectsDuplicateReference(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	seedReceivePayment(store, "PE-001", 250, "CHQ-9")
	seedReceivePayment(store, "PE-002", 250, "CHQ-9")

	e := NewExecutor(store, testLogger())
	_, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 250},
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-002", Amount: 250},
	}, false)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestReconcileMissingVoucherIsHardError(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")

	e := NewExecutor(store, testLogger())
	_, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{{
		VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-GONE", Amount: 500,
	}}, false)

	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "PE-GONE", nfErr.Name)
}

func TestReconcileUnsubmittedVoucherIsConcurrencyError(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	seedReceivePayment(store, "PE-001", 500, "")
	store.PaymentEntries["PE-001"].Docstatus = storage.DocstatusDraft

	e := NewExecutor(store, testLogger())
	_, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{{
		VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 500,
	}}, false)

	var cErr *ConcurrencyError
	assert.ErrorAs(t, err, &cErr)
}

func TestReconcileConcurrentUnallocatedChangeIsConcurrencyError(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	seedReceivePayment(store, "PE-001", 500, "")

	// Another writer claims part of the transaction between the read
	// and the write.
	store.BeforeApplyReconciliation = func() {
		store.BankTransactions["BT-001"].UnallocatedAmount = 100
		store.BankTransactions["BT-001"].AllocatedAmount = 400
	}

	e := NewExecutor(store, testLogger())
	_, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{{
		VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 500,
	}}, false)

	var cErr *ConcurrencyError
	require.ErrorAs(t, err, &cErr)

	got, err := store.GetBankTransaction(context.Background(), "BT-001")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.UnallocatedAmount, "the concurrent write must stand untouched")
}

func TestReconcileVoucherDeletedOutcome(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")

	e := NewExecutor(store, testLogger())
	outcome, err := e.ReconcileVoucher(context.Background(), "BT-001", 500,
		storage.VoucherPaymentEntry, "PE-GONE")
	require.NoError(t, err, "a deleted voucher is an expected race, not an error")
	assert.True(t, outcome.Deleted)
	assert.Nil(t, outcome.Transaction)
}

func TestReconcileVoucherUnsubmittedIsNoOp(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 500, "")
	seedReceivePayment(store, "PE-001", 500, "")
	store.PaymentEntries["PE-001"].Docstatus = storage.DocstatusDraft

	e := NewExecutor(store, testLogger())
	outcome, err := e.ReconcileVoucher(context.Background(), "BT-001", 500,
		storage.VoucherPaymentEntry, "PE-001")
	require.NoError(t, err)
	assert.False(t, outcome.Deleted)
	assert.Nil(t, outcome.Transaction)

	got, err := store.GetBankTransaction(context.Background(), "BT-001")
	require.NoError(t, err)
	assert.Equal(t, 500.0, got.UnallocatedAmount, "no allocation may be written")
}

func TestReconcileRejectsAmbiguousDirection(t *testing.T) {
	store := newTestStore()
	txn := seedDeposit(store, "BT-001", 500, "")
	txn.Withdrawal = 100

	e := NewExecutor(store, testLogger())
	_, err := e.Reconcile(context.Background(), "BT-001", nil, false)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestReconcileZeroAmountsSpreadProRata(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 45, "")
	seedReceivePayment(store, "PE-60", 60, "")
	seedReceivePayment(store, "PE-30", 30, "")

	e := NewExecutor(store, testLogger())
	txn, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-60"},
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-30"},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, storage.StatusReconciled, txn.Status)
	assert.Equal(t, 0.0, txn.UnallocatedAmount)

	allocations, err := store.ListAllocations(context.Background(), "BT-001")
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.InDelta(t, 30, allocations[0].AllocatedAmount, 0.001)
	assert.InDelta(t, 15, allocations[1].AllocatedAmount, 0.001)
}

func TestReconcileRejectsRepeatedPartyInMultiPartyBatch(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 600, "")
	seedReceivePayment(store, "PE-001", 600, "")

	e := NewExecutor(store, testLogger())
	_, err := e.Reconcile(context.Background(), "BT-001", []VoucherAllocation{
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 200, Party: "CUST-001"},
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 200, Party: "CUST-002"},
		{VoucherType: storage.VoucherPaymentEntry, VoucherName: "PE-001", Amount: 200, Party: "CUST-001"},
	}, true)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}
