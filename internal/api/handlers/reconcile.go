package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finledger/bankrecon/internal/api/dto"
	"github.com/finledger/bankrecon/internal/domain/matching"
	"github.com/finledger/bankrecon/internal/domain/recon"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// ReconcileHandler serves manual reconciliation, voucher creation and
// the auto-reconcile trigger.
type ReconcileHandler struct {
	executor *recon.Executor
	auto     *recon.AutoReconciler
	vouchers *recon.VoucherService
}

// NewReconcileHandler creates a reconcile handler.
func NewReconcileHandler(executor *recon.Executor, auto *recon.AutoReconciler, vouchers *recon.VoucherService) *ReconcileHandler {
	return &ReconcileHandler{executor: executor, auto: auto, vouchers: vouchers}
}

// Reconcile handles POST /api/transactions/{name}/reconcile.
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req dto.ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if len(req.Vouchers) == 0 {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("at least one voucher is required"))
		return
	}

	vouchers := make([]recon.VoucherAllocation, 0, len(req.Vouchers))
	for _, v := range req.Vouchers {
		vouchers = append(vouchers, recon.VoucherAllocation{
			VoucherType: storage.VoucherType(v.VoucherType),
			VoucherName: v.VoucherName,
			Amount:      v.Amount,
			PartyType:   v.PartyType,
			Party:       v.Party,
		})
	}

	txn, err := h.executor.Reconcile(r.Context(), chi.URLParam(r, "name"), vouchers, req.AllowMultiParty)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, txn)
}

// AutoReconcile handles POST /api/reconcile/auto.
func (h *ReconcileHandler) AutoReconcile(w http.ResponseWriter, r *http.Request) {
	var req dto.AutoReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	dates, ok := parseRange(w, req.FromDate, req.ToDate)
	if !ok {
		return
	}
	var refDates *matching.DateRange
	if req.FromReferenceDate != "" || req.ToReferenceDate != "" {
		parsed, ok := parseRange(w, req.FromReferenceDate, req.ToReferenceDate)
		if !ok {
			return
		}
		refDates = &parsed
	}

	result, err := h.auto.Run(r.Context(), req.BankAccount, dates, refDates)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, dto.AutoReconcileResponse{
		Result:  *result,
		Summary: result.Summary(),
	})
}

// CreatePaymentEntry handles POST /api/vouchers/payment-entries.
func (h *ReconcileHandler) CreatePaymentEntry(w http.ResponseWriter, r *http.Request) {
	var req recon.CreatePaymentEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	pe, err := h.vouchers.CreatePaymentEntry(r.Context(), req)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, pe)
}

// CreateJournalEntry handles POST /api/vouchers/journal-entries.
func (h *ReconcileHandler) CreateJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req recon.CreateJournalEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	je, err := h.vouchers.CreateJournalEntry(r.Context(), req)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, je)
}

func parseRange(w http.ResponseWriter, from, to string) (matching.DateRange, bool) {
	var dates matching.DateRange
	if from != "" {
		d, err := time.Parse("2006-01-02", from)
		if err != nil {
			WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid from date"))
			return dates, false
		}
		dates.From = &d
	}
	if to != "" {
		d, err := time.Parse("2006-01-02", to)
		if err != nil {
			WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid to date"))
			return dates, false
		}
		dates.To = &d
	}
	return dates, true
}
