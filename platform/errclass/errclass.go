// Package errclass defines the platform error taxonomy. Every failure that
// crosses a package boundary is tagged with a Code, and the code's class
// decides what the caller may do with it: hard failures poison the run and
// must never be retried into a different answer, recoverable failures may be
// retried, and warnings complete the run with a flag.
package errclass

import (
	"github.com/pkg/errors"
)

// Code identifies a single failure mode.
type Code string

// Hard failure codes. A run that hits one of these fails closed.
const (
	InstrumentNotSupported      Code = "INSTRUMENT_NOT_SUPPORTED"
	DataProvenanceViolation     Code = "DATA_PROVENANCE_VIOLATION"
	BarValidationFailed         Code = "BAR_VALIDATION_FAILED"
	CorruptData                 Code = "CORRUPT_DATA"
	ArchetypeInferenceFailed    Code = "ARCHETYPE_INFERENCE_FAILED"
	ArchetypeNotImplemented     Code = "ARCHETYPE_NOT_IMPLEMENTED"
	StrategyProvenanceViolation Code = "STRATEGY_PROVENANCE_VIOLATION"
	InvalidStrategy             Code = "INVALID_STRATEGY"
	ZeroTradesGenerated         Code = "ZERO_TRADES_GENERATED"
	CalculationError            Code = "CALCULATION_ERROR"
	Unknown                     Code = "UNKNOWN_ERROR"
)

// Recoverable codes. Callers may retry or fall back.
const (
	Transient Code = "TRANSIENT_ERROR"
	CacheMiss Code = "CACHE_MISS"
)

// Warning codes. The run completes and carries the code as an annotation.
const (
	NoSignals Code = "NO_SIGNALS"
)

// Class groups codes by what the caller is allowed to do about them.
type Class int

const (
	// HardFail poisons the run. Never retried, never downgraded.
	HardFail Class = iota
	// Recoverable may be retried with backoff or served from a fallback.
	Recoverable
	// Warning completes the run with an annotation.
	Warning
)

func (c Class) String() string {
	switch c {
	case HardFail:
		return "hard_fail"
	case Recoverable:
		return "recoverable"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

var codeClasses = map[Code]Class{
	InstrumentNotSupported:      HardFail,
	DataProvenanceViolation:     HardFail,
	BarValidationFailed:         HardFail,
	CorruptData:                 HardFail,
	ArchetypeInferenceFailed:    HardFail,
	ArchetypeNotImplemented:     HardFail,
	StrategyProvenanceViolation: HardFail,
	InvalidStrategy:             HardFail,
	ZeroTradesGenerated:         HardFail,
	CalculationError:            HardFail,
	Unknown:                     HardFail,
	Transient:                   Recoverable,
	CacheMiss:                   Recoverable,
	NoSignals:                   Warning,
}

// ClassOf returns the class a code belongs to. Codes outside the taxonomy
// classify as hard failures, the conservative choice.
func ClassOf(code Code) Class {
	if cl, ok := codeClasses[code]; ok {
		return cl
	}
	return HardFail
}

// Error is a failure tagged with a taxonomy code. It wraps an underlying
// cause when one exists.
type Error struct {
	code  Code
	msg   string
	cause error
}

// New returns a tagged error with no underlying cause.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf returns a tagged error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, msg: errors.Errorf(format, args...).Error()}
}

// Wrap tags an existing error. A nil err returns nil so call sites can wrap
// unconditionally.
func Wrap(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, cause: err}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.code) + ": " + e.msg
	}
	return string(e.code) + ": " + e.msg + ": " + e.cause.Error()
}

// Unwrap supports errors.Is and errors.As against the cause chain.
func (e *Error) Unwrap() error {
	return e.cause
}

// Code returns the taxonomy code.
func (e *Error) Code() Code {
	return e.code
}

// CodeOf extracts the taxonomy code from anywhere in err's chain. Untagged
// errors classify as UNKNOWN_ERROR, and nil returns an empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return Unknown
}

// Classify returns the class of err's taxonomy code.
func Classify(err error) Class {
	return ClassOf(CodeOf(err))
}

// IsHardFail reports whether err poisons the run.
func IsHardFail(err error) bool {
	return err != nil && Classify(err) == HardFail
}

// IsRecoverable reports whether err may be retried or served from fallback.
func IsRecoverable(err error) bool {
	return err != nil && Classify(err) == Recoverable
}

// Is lets errors.Is match two tagged errors by code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}
