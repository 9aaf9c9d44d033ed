package ledger

import "fmt"

// LedgerError reports a failed submission or confirmation against the
// external ledger. Reason is "timeout" when the submission deadline expired;
// a timed-out submission is neither known committed nor rolled back, and the
// caller must re-query VerifyAgreement to resolve the ambiguity.
type LedgerError struct {
	Op     string
	Reason string
	Err    error
}

func (e *LedgerError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ledger error during %s (%s): %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("ledger error during %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// NotFoundError reports a missing on-chain account.
type NotFoundError struct {
	Address string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("account %s not found", e.Address)
}

// DecodeError reports an on-chain payload that could not be parsed.
type DecodeError struct {
	Address string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode account %s payload: %v", e.Address, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
