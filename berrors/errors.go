// Package berrors defines the domain-level error kinds shared across every
// layer of the PKI core, matching the kind alphabet in spec §7. Lower layers
// never mask upper-layer policy: a PKICoreError's Type is set once, at the
// point the failure is first detected, and higher layers may only recode it
// (BadData -> Signature) when they have independently confirmed the
// recoding is warranted (see sigengine's keyID fallback, ErrorType mismatch
// handling).
package berrors

import (
	"errors"
	"fmt"
)

// errorType is a closed enumeration of failure kinds, the same way
// cryptlib's CRYPT_ERROR_* constants are. It is unexported; callers compare
// kinds via the exported sentinel values below and errors.Is, matching
// boulder's berrors.New(berrors.NotFound, ...) / errors.Is(err,
// berrors.NotFound) idiom.
type errorType int

const (
	_ errorType = iota
	tBadData
	tUnderflow
	tOverflow
	tSignature
	tNotInited
	tNotFound
	tInited
	tDuplicate
	tPermission
	tEnvelopeResource
	tTimeout
	tRead
	tWrite
	tOpen
	tInvalid
	tFailed
	tInternalServer
)

var typeNames = map[errorType]string{
	tBadData:          "BadData",
	tUnderflow:        "Underflow",
	tOverflow:         "Overflow",
	tSignature:        "Signature",
	tNotInited:        "NotInited",
	tNotFound:         "NotFound",
	tInited:           "Inited",
	tDuplicate:        "Duplicate",
	tPermission:       "Permission",
	tEnvelopeResource: "EnvelopeResource",
	tTimeout:          "Timeout",
	tRead:             "Read",
	tWrite:            "Write",
	tOpen:             "Open",
	tInvalid:          "Invalid",
	tFailed:           "Failed",
	tInternalServer:   "InternalServer",
}

func (t errorType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "Unknown"
}

// AttrErrorType classifies which aspect of an attribute was at fault, per
// spec §7's errorType alphabet (distinct from the failure-kind errorType
// above, which classifies the failure itself).
type AttrErrorType int

const (
	NoAttrError AttrErrorType = iota
	AttrPresent
	AttrAbsent
	AttrValue
	AttrSize
	Constraint
	IssuerConstraint
)

// PKICoreError is the concrete error type produced by every layer, and also
// doubles as the package's kind sentinels (NotFound, BadData, ...): a
// sentinel carries only a Type and is never returned directly, only
// compared against with errors.Is or used as the first argument to New.
type PKICoreError struct {
	Type       errorType
	ErrorLocus string
	AttrType   AttrErrorType
	Msg        string
	Wrapped    error
}

func (e *PKICoreError) Error() string {
	if e.ErrorLocus != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Msg, e.ErrorLocus)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Msg)
}

func (e *PKICoreError) Unwrap() error { return e.Wrapped }

// Is compares by Type only, so errors.Is(err, berrors.NotFound) works
// regardless of message or locus.
func (e *PKICoreError) Is(target error) bool {
	t, ok := target.(*PKICoreError)
	return ok && e.Type == t.Type
}

// Kind sentinels. Used both as errors.Is targets and as the first argument
// to New; never returned as-is.
var (
	BadData          = &PKICoreError{Type: tBadData}
	Underflow        = &PKICoreError{Type: tUnderflow}
	Overflow         = &PKICoreError{Type: tOverflow}
	Signature        = &PKICoreError{Type: tSignature}
	NotInited        = &PKICoreError{Type: tNotInited}
	NotFound         = &PKICoreError{Type: tNotFound}
	Inited           = &PKICoreError{Type: tInited}
	Duplicate        = &PKICoreError{Type: tDuplicate}
	Permission       = &PKICoreError{Type: tPermission}
	EnvelopeResource = &PKICoreError{Type: tEnvelopeResource}
	Timeout          = &PKICoreError{Type: tTimeout}
	Read             = &PKICoreError{Type: tRead}
	Write            = &PKICoreError{Type: tWrite}
	Open             = &PKICoreError{Type: tOpen}
	Invalid          = &PKICoreError{Type: tInvalid}
	Failed           = &PKICoreError{Type: tFailed}
	InternalServer   = &PKICoreError{Type: tInternalServer}
)

// New constructs an error of the given kind with a formatted message, e.g.
// berrors.New(berrors.NotFound, "user %s", userID).
func New(kind *PKICoreError, format string, args ...interface{}) error {
	return &PKICoreError{Type: kind.Type, Msg: fmt.Sprintf(format, args...)}
}

// WithLocus attaches an attribute locus and classification to an existing
// error built with New, without losing its Type.
func WithLocus(err error, locus string, at AttrErrorType) error {
	var pe *PKICoreError
	if errors.As(err, &pe) {
		pe.ErrorLocus = locus
		pe.AttrType = at
		return pe
	}
	return err
}

// Recode re-types err as a different kind while keeping it chained as the
// cause: Of reports the new kind, and errors.Is still matches the original
// kind through Unwrap.
func Recode(kind *PKICoreError, err error) error {
	if err == nil {
		return nil
	}
	return &PKICoreError{Type: kind.Type, Msg: err.Error(), Wrapped: err}
}

// InternalServerError constructs an InternalServer-kind error, named to
// match the call-site spelling used throughout the teacher's ca.go
// (berrors.InternalServerError(...)).
func InternalServerError(format string, args ...interface{}) error {
	return New(InternalServer, format, args...)
}

// Of reports the kind of err as one of the exported sentinels, or nil if
// err is not a *PKICoreError.
func Of(err error) *PKICoreError {
	var pe *PKICoreError
	if errors.As(err, &pe) {
		return &PKICoreError{Type: pe.Type}
	}
	return nil
}
