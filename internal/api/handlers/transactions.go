package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/finledger/bankrecon/internal/api/dto"
	"github.com/finledger/bankrecon/internal/domain/matching"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// TransactionsHandler serves bank transaction listings and candidate
// searches.
type TransactionsHandler struct {
	store   storage.LedgerStore
	matcher *matching.Matcher
}

// NewTransactionsHandler creates a transactions handler.
func NewTransactionsHandler(store storage.LedgerStore, matcher *matching.Matcher) *TransactionsHandler {
	return &TransactionsHandler{store: store, matcher: matcher}
}

// List handles GET /api/transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	from, err := ParseDateParam(r, "from_date")
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid from_date"))
		return
	}
	to, err := ParseDateParam(r, "to_date")
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid to_date"))
		return
	}

	transactions, err := h.store.ListBankTransactions(r.Context(), storage.BankTransactionFilters{
		BankAccount:     r.URL.Query().Get("bank_account"),
		FromDate:        from,
		ToDate:          to,
		OrderBy:         r.URL.Query().Get("order_by"),
		OnlyUnallocated: ParseBoolParam(r, "only_unallocated", false),
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, dto.TransactionListResponse{
		Transactions: transactions,
		TotalCount:   len(transactions),
	})
}

// Get handles GET /api/transactions/{name}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.store.GetBankTransaction(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, txn)
}

// Candidates handles GET /api/transactions/{name}/candidates.
func (h *TransactionsHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	req := matching.Request{
		TransactionName: chi.URLParam(r, "name"),
		DocumentTypes:   parseDocumentTypes(r),
	}

	from, err := ParseDateParam(r, "from_date")
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid from_date"))
		return
	}
	to, err := ParseDateParam(r, "to_date")
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid to_date"))
		return
	}
	req.PostingDateRange = matching.DateRange{From: from, To: to}

	refFrom, err := ParseDateParam(r, "from_reference_date")
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid from_reference_date"))
		return
	}
	refTo, err := ParseDateParam(r, "to_reference_date")
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid to_reference_date"))
		return
	}
	if refFrom != nil || refTo != nil {
		req.ReferenceDateRange = &matching.DateRange{From: refFrom, To: refTo}
	}

	candidates, err := h.matcher.FindCandidates(r.Context(), req)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, dto.CandidateListResponse{
		Candidates: candidates,
		TotalCount: len(candidates),
	})
}

// parseDocumentTypes reads the comma-separated document_types query
// parameter. An absent parameter enables every voucher variant.
func parseDocumentTypes(r *http.Request) matching.DocumentTypes {
	raw := r.URL.Query().Get("document_types")
	dt := matching.DocumentTypes{
		ExactMatch: ParseBoolParam(r, "exact_match", false),
		ExactParty: ParseBoolParam(r, "exact_party", false),
	}
	if raw == "" {
		dt.PaymentEntry = true
		dt.JournalEntry = true
		dt.SalesInvoice = true
		dt.PurchaseInvoice = true
		dt.ExpenseClaim = true
		dt.LoanDisbursement = true
		dt.LoanRepayment = true
		dt.BankTransaction = true
		dt.UnpaidInvoices = ParseBoolParam(r, "unpaid_invoices", false)
		return dt
	}
	for _, name := range strings.Split(raw, ",") {
		switch strings.TrimSpace(name) {
		case "payment_entry":
			dt.PaymentEntry = true
		case "journal_entry":
			dt.JournalEntry = true
		case "sales_invoice":
			dt.SalesInvoice = true
		case "purchase_invoice":
			dt.PurchaseInvoice = true
		case "expense_claim":
			dt.ExpenseClaim = true
		case "loan_disbursement":
			dt.LoanDisbursement = true
		case "loan_repayment":
			dt.LoanRepayment = true
		case "bank_transaction":
			dt.BankTransaction = true
		case "unpaid_invoices":
			dt.UnpaidInvoices = true
		case "exact_match":
			dt.ExactMatch = true
		case "exact_party":
			dt.ExactParty = true
		}
	}
	return dt
}
