package agreement

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is against any error returned by the relayer.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrRpc              = errors.New("rpc error")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrChainSubmission  = errors.New("chain submission error")
	ErrDerivation       = errors.New("derivation error")
)

// Error carries a kind from the taxonomy above, the operation that failed
// and the underlying cause (may be nil).
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func ValidationError(op string, format string, args ...any) error {
	return newError(ErrValidation, op, fmt.Errorf(format, args...))
}

func NotFoundError(op string, err error) error {
	return newError(ErrNotFound, op, err)
}

func TimeoutError(op string, err error) error {
	return newError(ErrTimeout, op, err)
}

func RpcError(op string, err error) error {
	return newError(ErrRpc, op, err)
}

func DuplicateRequestError(op string, requestId [32]byte) error {
	return newError(ErrDuplicateRequest, op, fmt.Errorf("request 0x%x already in flight", requestId))
}

func ChainSubmissionError(op string, err error) error {
	return newError(ErrChainSubmission, op, err)
}

func DerivationError(op string, err error) error {
	return newError(ErrDerivation, op, err)
}

// Retryable reports whether a failed call may be attempted again.
// Validation, not-found and duplicate errors never change on retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, ErrDerivation):
		return false
	}
	return true
}
