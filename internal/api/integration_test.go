package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/bankrecon/internal/api"
	"github.com/finledger/bankrecon/internal/api/dto"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// These tests run the full stack against a real SQLite database:
// HTTP request -> router -> handlers -> domain -> storage. They catch
// what mock-backed tests miss, like SQL NULL handling and JSON
// serialization through the whole pipeline.

func createTestServer(t *testing.T) (*httptest.Server, *storage.Storage) {
	t.Helper()

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "api_integration.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := api.NewServer(api.DefaultConfig(), store, logger)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func seedLedger(t *testing.T, store *storage.Storage) {
	t.Helper()
	db := store.DB()

	stmts := []string{
		`INSERT INTO companies (name, currency) VALUES ('Acme Corp', 'USD')`,
		`INSERT INTO accounts (name, company, currency, account_type)
		 VALUES ('Checking - AC', 'Acme Corp', 'USD', 'Bank')`,
		`INSERT INTO bank_accounts (name, gl_account, company)
		 VALUES ('Main Checking', 'Checking - AC', 'Acme Corp')`,
		`INSERT INTO bank_transactions
		 (name, date, deposit, currency, bank_account, company, reference_number, unallocated_amount, status, docstatus)
		 VALUES ('BT-001', '2025-03-10', 500, 'USD', 'Main Checking', 'Acme Corp', 'REF-1', 500, 'Unreconciled', 1)`,
		`INSERT INTO payment_entries
		 (name, payment_type, posting_date, reference_no, paid_amount, paid_to, paid_to_account_currency, docstatus)
		 VALUES ('PE-001', 'Receive', '2025-03-08', 'REF-1', 500, 'Checking - AC', 'USD', 1)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestIntegrationCandidatesAndReconcile(t *testing.T) {
	ts, store := createTestServer(t)
	seedLedger(t, store)

	// Candidate search finds the matching payment entry.
	resp, err := http.Get(ts.URL + "/api/transactions/BT-001/candidates")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var candidates dto.CandidateListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&candidates))
	require.Equal(t, 1, candidates.TotalCount)
	assert.Equal(t, "PE-001", candidates.Candidates[0].Name)
	assert.True(t, candidates.Candidates[0].ReferenceMatch)
	assert.True(t, candidates.Candidates[0].AmountMatch)

	// Reconcile against the found candidate.
	body, _ := json.Marshal(dto.ReconcileRequest{
		Vouchers: []dto.VoucherAllocationRequest{{
			VoucherType: "Payment Entry", VoucherName: "PE-001", Amount: 500,
		}},
	})
	resp, err = http.Post(ts.URL+"/api/transactions/BT-001/reconcile", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The transaction is persisted as reconciled.
	resp, err = http.Get(ts.URL + "/api/transactions/BT-001")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var txn storage.BankTransaction
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&txn))
	assert.Equal(t, storage.StatusReconciled, txn.Status)
	assert.Equal(t, 0.0, txn.UnallocatedAmount)

	// The consumed payment entry no longer comes back as a candidate.
	resp, err = http.Get(ts.URL + "/api/transactions/BT-001/candidates")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&candidates))
	assert.Equal(t, 0, candidates.TotalCount)
}

func TestIntegrationAutoReconcile(t *testing.T) {
	ts, store := createTestServer(t)
	seedLedger(t, store)

	body, _ := json.Marshal(dto.AutoReconcileRequest{BankAccount: "Main Checking"})
	resp, err := http.Post(ts.URL+"/api/reconcile/auto", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result dto.AutoReconcileResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, []string{"BT-001"}, result.Result.Reconciled)

	var status string
	require.NoError(t, store.DB().QueryRow(
		`SELECT status FROM bank_transactions WHERE name = 'BT-001'`).Scan(&status))
	assert.Equal(t, "Reconciled", status)
}
