// Package apierror defines the failure taxonomy shared by every engine in
// the daemon. Each user-visible failure carries a kind, a stable machine
// code in uppercase snake case, and a human message. Internal details such
// as store paths or RPC endpoints stay in the wrapped cause, which is
// logged but never surfaced.
package apierror

import (
	"fmt"
)

// Kind classifies a failure for transport-level mapping.
type Kind uint8

const (
	Internal Kind = iota
	Validation
	NotFound
	ConflictState
	Unauthenticated
	Forbidden
	Replay
	StaleProof
	RPCTransient
	RPCPermanent
	PersistConflict
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "VALIDATION"
	case NotFound:
		return "NOT_FOUND"
	case ConflictState:
		return "CONFLICT_STATE"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case Forbidden:
		return "FORBIDDEN"
	case Replay:
		return "REPLAY"
	case StaleProof:
		return "STALE_PROOF"
	case RPCTransient:
		return "RPC_TRANSIENT"
	case RPCPermanent:
		return "RPC_PERMANENT"
	case PersistConflict:
		return "PERSIST_CONFLICT"
	default:
		return "INTERNAL"
	}
}

// Machine codes referenced from more than one package. Codes used by a
// single call site are declared inline there.
const (
	CodeDeviceExists     = "DEVICE_EXISTS"
	CodeUnknownDevice    = "UNKNOWN_DEVICE"
	CodeInactiveDevice   = "INACTIVE_DEVICE"
	CodeBadProof         = "BAD_PROOF"
	CodeStaleProof       = "STALE_PROOF"
	CodeReplay           = "REPLAY"
	CodeNoPending        = "NO_PENDING"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUnknownNetwork   = "UNKNOWN_NETWORK"
	CodeInvalidState     = "INVALID_STATE"
	CodeProposalExpired  = "PROPOSAL_EXPIRED"
	CodeBatchNotFound    = "BATCH_NOT_FOUND"
	CodeProposalNotFound = "PROPOSAL_NOT_FOUND"
	CodeUnknownSigner    = "UNKNOWN_SIGNER"
	CodeSignerExists     = "SIGNER_EXISTS"
	CodeCASConflict      = "CAS_CONFLICT"
	CodeRPCTransient     = "RPC_TRANSIENT"
	CodeRPCPermanent     = "RPC_PERMANENT"
)

// Error is the taxonomy error type. Construct with New or Wrap.
type Error struct {
	kind Kind
	code string
	msg  string
	err  error
}

// New returns an Error with no underlying cause.
func New(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

// Newf formats the human message.
func Newf(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{kind: kind, code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error. The cause is available through
// Unwrap for logging but is not part of the user-visible message.
func Wrap(err error, kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg, err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.code + ": " + e.msg
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns the stable machine code.
func (e *Error) Code() string {
	return e.code
}

// Message returns the human message without the code prefix.
func (e *Error) Message() string {
	return e.msg
}

// KindOf walks the error chain and returns the kind of the outermost
// taxonomy error, or Internal when the chain carries none.
func KindOf(err error) Kind {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te.kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Internal
}

// CodeOf returns the machine code of the outermost taxonomy error, or
// "INTERNAL" when the chain carries none.
func CodeOf(err error) string {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te.code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "INTERNAL"
}

// FromError walks the error chain and returns the outermost taxonomy
// error, or false when the chain carries none.
func FromError(err error) (*Error, bool) {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if te, ok := err.(*Error); ok && te.kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
