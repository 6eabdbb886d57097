// Package rigerr defines the typed error vocabulary shared by the schema,
// model, codec, runtime and dispatch packages (see spec.md §7).
//
// Every error kind named in §7 is represented by a sentinel wrapped with a
// source-specific message, so callers can use errors.Is/errors.As across
// package boundaries while still getting a human-readable message and, for
// parse errors, a source Span.
package rigerr

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 error codes, per spec.md §6.
const (
	CodeParseError             = -32700
	CodeInvalidRequest         = -32600
	CodeMethodNotFound         = -32601
	CodeInvalidParams          = -32602
	CodeInternalError          = -32603
	CodeRigCommunicationError  = -32000
	CodeInvalidCommandParams   = -32001
	CodeSubscriptionError      = -32002
	CodeUnknownRigID           = -32003
)

// Sentinel kinds. Wrap these with fmt.Errorf("...: %w", ErrX) or use New
// below; callers match with errors.Is.
var (
	ErrConfig                 = errors.New("config error")
	ErrUnsupportedCommand     = errors.New("unsupported command")
	ErrUnsupportedEnumMember  = errors.New("unsupported enum member")
	ErrValueOutOfRange        = errors.New("value out of range")
	ErrIO                     = errors.New("io error")
	ErrTimeout                = errors.New("timeout")
	ErrReplyValidationFailed  = errors.New("reply validation failed")
	ErrUnknownEnumValue       = errors.New("unknown enum value")
	ErrUnknownRigID           = errors.New("unknown rig id")
	ErrSubscriptionError      = errors.New("subscription error")
	ErrProtocolError          = errors.New("protocol error")
	ErrRigDisabled            = errors.New("rig disabled")
	ErrNotImplemented         = errors.New("not implemented")
)

// kindCodes maps a sentinel to its JSON-RPC surfacing code, per §7.
var kindCodes = map[error]int{
	ErrConfig:                CodeInternalError,
	ErrUnsupportedCommand:    CodeInvalidCommandParams,
	ErrUnsupportedEnumMember: CodeInvalidCommandParams,
	ErrValueOutOfRange:       CodeInvalidCommandParams,
	ErrIO:                    CodeRigCommunicationError,
	ErrTimeout:               CodeRigCommunicationError,
	ErrReplyValidationFailed: CodeRigCommunicationError,
	ErrUnknownEnumValue:      CodeRigCommunicationError,
	ErrUnknownRigID:          CodeUnknownRigID,
	ErrSubscriptionError:     CodeSubscriptionError,
	ErrProtocolError:         CodeInvalidRequest,
	ErrRigDisabled:           CodeInvalidCommandParams,
	ErrNotImplemented:        CodeInternalError,
}

// Span locates an error within schema or model source text.
type Span struct {
	Offset int
	Line   int
	Column int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// RigError is the concrete error value returned across package boundaries.
// It always wraps one of the sentinels above.
type RigError struct {
	Kind error
	Msg  string
	Span *Span
}

func (e *RigError) Error() string {
	if e.Span != nil {
		return fmt.Sprintf("%s: %s (at %s)", e.Kind, e.Msg, e.Span)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *RigError) Unwrap() error {
	return e.Kind
}

// RPCCode reports the JSON-RPC error code this failure should surface as.
func (e *RigError) RPCCode() int {
	if code, ok := kindCodes[e.Kind]; ok {
		return code
	}
	return CodeInternalError
}

// New builds a RigError of the given kind with a formatted message.
func New(kind error, format string, args ...any) *RigError {
	return &RigError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NewAt builds a RigError anchored to a source span.
func NewAt(kind error, span Span, format string, args ...any) *RigError {
	return &RigError{Kind: kind, Msg: fmt.Sprintf(format, args...), Span: &span}
}

// RPCCode extracts the JSON-RPC error code from any error, defaulting to
// CodeInternalError when err does not carry one.
func RPCCode(err error) int {
	var re *RigError
	if errors.As(err, &re) {
		return re.RPCCode()
	}
	return CodeInternalError
}
