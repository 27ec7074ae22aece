package recon

import (
	"fmt"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// ValidationError reports a rule violation in the requested operation:
// duplicate vouchers in one batch, duplicate reference numbers,
// currency mismatches, a missing party on a receivable or payable
// account. It aborts only the current operation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a voucher that no longer exists. The bulk
// reconciliation path propagates it as a hard error; the
// single-voucher path converts it into a deleted outcome.
type NotFoundError struct {
	VoucherType storage.VoucherType
	Name        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.VoucherType, e.Name)
}

// ConcurrencyError reports a voucher or transaction observed in a
// transient state: not yet submitted, or changed underneath the
// operation. Callers may retry; the single-voucher path treats it as
// a no-op.
type ConcurrencyError struct {
	VoucherType storage.VoucherType
	Name        string
	Reason      string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.VoucherType, e.Name, e.Reason)
}
