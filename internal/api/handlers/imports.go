package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/finledger/bankrecon/internal/api/dto"
	"github.com/finledger/bankrecon/internal/ingestion/camt"
)

// ImportsHandler triggers statement imports.
type ImportsHandler struct {
	importer *camt.Importer
}

// NewImportsHandler creates an imports handler.
func NewImportsHandler(importer *camt.Importer) *ImportsHandler {
	return &ImportsHandler{importer: importer}
}

// Import handles POST /api/imports.
func (h *ImportsHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req dto.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.FilePath == "" || req.Company == "" || req.BankAccount == "" {
		WriteError(w, http.StatusBadRequest,
			dto.BadRequestError("file_path, company and bank_account are required"))
		return
	}

	inserted, err := h.importer.ImportFile(r.Context(), req.FilePath, req.Company, req.BankAccount)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
		return
	}
	WriteJSON(w, http.StatusOK, dto.ImportResponse{Inserted: inserted})
}
