package matching

import (
	"fmt"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// PermissionError reports a failed capability check on a voucher
// variant. The whole matching request aborts; no partial result is
// returned.
type PermissionError struct {
	VoucherType storage.VoucherType
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("no read permission for %s", e.VoucherType)
}
