package costbasis

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports malformed input. The call that raised it performed
// no mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientLotError reports an attempt to dispose more than a lot's
// remaining amount. Under the per-asset locking discipline this is
// unreachable: if it surfaces, it is an internal-consistency fault, not a
// user error, and the whole allocation is rolled back.
type InsufficientLotError struct {
	LotID     uuid.UUID
	Requested Quantity
	Remaining Quantity
}

func (e *InsufficientLotError) Error() string {
	return fmt.Sprintf("lot %s: requested %s exceeds remaining %s (internal consistency fault)",
		e.LotID, e.Requested, e.Remaining)
}

// ConcurrencyConflictError reports that the per-asset allocation lock could
// not be acquired within the bounded retry budget. The failure is transient
// and local to the call.
type ConcurrencyConflictError struct {
	Key      AssetKey
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("allocation lock contention on %s after %d attempts", e.Key, e.Attempts)
}

// WarningCode identifies a non-fatal condition attached to a result.
type WarningCode string

const (
	// ZeroBasisAssumed marks a disposal (or part of one) allocated with no
	// covering lot: the cost basis is assumed to be zero and the whole
	// proceeds count as gain. Gain is overstated by policy, never hidden.
	ZeroBasisAssumed WarningCode = "zero_basis_assumed"
	// RateUnavailable marks a result whose local-currency mirrors were left
	// empty because no exchange rate was available. USD figures are still
	// authoritative.
	RateUnavailable WarningCode = "rate_unavailable"
	// WashSaleAdjusted marks a loss disposal that triggered one or more
	// wash-sale violations.
	WashSaleAdjusted WarningCode = "wash_sale_adjusted"
	// PriceUnavailable marks a holding valued at zero in a summary because
	// the price provider knows no current price for its token.
	PriceUnavailable WarningCode = "price_unavailable"
)

// Warning is a non-fatal, caller-visible annotation on a result.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

func warningf(code WarningCode, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HasWarning reports whether the slice contains a warning with the given code.
func HasWarning(ws []Warning, code WarningCode) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}
