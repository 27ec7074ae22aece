package recon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/bankrecon/internal/domain/matching"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

func newAutoReconciler(store *storage.MockLedgerStore) *AutoReconciler {
	logger := testLogger()
	matcher := matching.NewMatcher(store, matching.AllowAll{}, logger)
	executor := NewExecutor(store, logger)
	return NewAutoReconciler(store, matcher, executor, logger)
}

func TestAutoReconcileFullMatch(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 300, "REF-300")
	seedReceivePayment(store, "PE-001", 300, "REF-300")

	a := newAutoReconciler(store)
	result, err := a.Run(context.Background(), "Main Checking", matching.DateRange{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"BT-001"}, result.Reconciled)
	assert.Empty(t, result.PartiallyReconciled)
	assert.Empty(t, result.Failed)

	txn, err := store.GetBankTransaction(context.Background(), "BT-001")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusReconciled, txn.Status)
}

func TestAutoReconcilePartialMatch(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 300, "REF-100")
	seedReceivePayment(store, "PE-001", 100, "REF-100")

	a := newAutoReconciler(store)
	result, err := a.Run(context.Background(), "Main Checking", matching.DateRange{}, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Reconciled)
	assert.Equal(t, []string{"BT-001"}, result.PartiallyReconciled)

	txn, err := store.GetBankTransaction(context.Background(), "BT-001")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPartiallyReconciled, txn.Status)
	assert.Equal(t, 200.0, txn.UnallocatedAmount)
}

func TestAutoReconcileSkipsTransactionsWithoutCandidates(t *testing.T) {
	store := newTestStore()
	seedDeposit(store, "BT-001", 300, "REF-NONE")
	seedDeposit(store, "BT-002", 400, "")

	a := newAutoReconciler(store)
	result, err := a.Run(context.Background(), "Main Checking", matching.DateRange{}, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Reconciled)
	assert.Empty(t, result.Failed)
	assert.ElementsMatch(t, []string{"BT-001", "BT-002"}, result.Skipped)
}

func TestAutoReconcileFailureIsolation(t *testing.T) {
	store := newTestStore()
	// BT-BAD has two linked payment entries sharing a reference
	// number, which the executor rejects; BT-GOOD must still succeed
	seedDeposit(store, "BT-BAD", 500, "REF-DUP")
	seedReceivePayment(store, "PE-D1", 250, "REF-DUP")
	seedReceivePayment(store, "PE-D2", 250, "REF-DUP")

	seedDeposit(store, "BT-GOOD", 300, "REF-OK")
	seedReceivePayment(store, "PE-OK", 300, "REF-OK")

	a := newAutoReconciler(store)
	result, err := a.Run(context.Background(), "Main Checking", matching.DateRange{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"BT-BAD"}, result.Failed)
	assert.Equal(t, []string{"BT-GOOD"}, result.Reconciled)
}

func TestAutoReconcileSummary(t *testing.T) {
	r := &AutoResult{
		Reconciled:          []string{"a", "b"},
		PartiallyReconciled: []string{"c"},
		Failed:              []string{"d"},
	}
	assert.Equal(t, "2 reconciled, 1 partially reconciled, 0 skipped, 1 failed", r.Summary())
}
