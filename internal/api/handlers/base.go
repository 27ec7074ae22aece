package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/finledger/bankrecon/internal/api/dto"
	"github.com/finledger/bankrecon/internal/domain/matching"
	"github.com/finledger/bankrecon/internal/domain/recon"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	WriteJSON(w, status, err)
}

// WriteDomainError maps domain errors to HTTP responses: validation
// 422, permission 403, not found 404, concurrency conflict 409,
// everything else 500.
func WriteDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr  *recon.ValidationError
		notFoundErr    *recon.NotFoundError
		concurrencyErr *recon.ConcurrencyError
		permissionErr  *matching.PermissionError
	)
	switch {
	case errors.As(err, &validationErr):
		WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(validationErr.Reason))
	case errors.As(err, &permissionErr):
		WriteError(w, http.StatusForbidden, dto.ForbiddenError(permissionErr.Error()))
	case errors.As(err, &notFoundErr):
		WriteError(w, http.StatusNotFound, dto.NotFoundError(string(notFoundErr.VoucherType)))
	case errors.Is(err, storage.ErrNotFound):
		WriteError(w, http.StatusNotFound, dto.NotFoundError("resource"))
	case errors.As(err, &concurrencyErr):
		WriteError(w, http.StatusConflict, dto.ConflictError(concurrencyErr.Error()))
	default:
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// ParseDateParam parses a YYYY-MM-DD query parameter. Returns nil when
// the parameter is absent.
func ParseDateParam(r *http.Request, name string) (*time.Time, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", val)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}
