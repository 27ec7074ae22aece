package dto

// ReconcileRequest allocates a set of vouchers against one bank
// transaction.
type ReconcileRequest struct {
	Vouchers        []VoucherAllocationRequest `json:"vouchers"`
	AllowMultiParty bool                       `json:"allow_multi_party,omitempty"`
}

// VoucherAllocationRequest is one (voucher, amount) pair of a
// reconcile request.
type VoucherAllocationRequest struct {
	VoucherType string  `json:"voucher_type"`
	VoucherName string  `json:"voucher_name"`
	Amount      float64 `json:"amount"`
	PartyType   string  `json:"party_type,omitempty"`
	Party       string  `json:"party,omitempty"`
}

// AutoReconcileRequest starts an unattended reconciliation run.
type AutoReconcileRequest struct {
	BankAccount       string `json:"bank_account"`
	FromDate          string `json:"from_date,omitempty"`
	ToDate            string `json:"to_date,omitempty"`
	FromReferenceDate string `json:"from_reference_date,omitempty"`
	ToReferenceDate   string `json:"to_reference_date,omitempty"`
}

// ImportRequest imports a CAMT.053 statement file readable by the
// server.
type ImportRequest struct {
	FilePath    string `json:"file_path"`
	Company     string `json:"company"`
	BankAccount string `json:"bank_account"`
}
