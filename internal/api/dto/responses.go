package dto

import (
	"time"

	"github.com/finledger/bankrecon/internal/domain/matching"
	"github.com/finledger/bankrecon/internal/domain/recon"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// NewHealthResponse creates a healthy response.
func NewHealthResponse() HealthResponse {
	return HealthResponse{Status: "ok", Time: time.Now().UTC()}
}

// TransactionListResponse wraps a transaction listing.
type TransactionListResponse struct {
	Transactions []*storage.BankTransaction `json:"transactions"`
	TotalCount   int                        `json:"total_count"`
}

// CandidateListResponse wraps a candidate search result.
type CandidateListResponse struct {
	Candidates []matching.Candidate `json:"candidates"`
	TotalCount int                  `json:"total_count"`
}

// ImportResponse reports a statement import outcome.
type ImportResponse struct {
	Inserted int `json:"inserted"`
}

// AutoReconcileResponse reports an unattended run outcome.
type AutoReconcileResponse struct {
	Result  recon.AutoResult `json:"result"`
	Summary string           `json:"summary"`
}
