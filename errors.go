package plundervolt

// Kind identifies one of the engine's fixed error conditions.
type Kind int

const (
	// Generic is the fallback error kind.
	Generic Kind = iota
	// NotInitialised means Run was called without a prior SetSpec, or
	// the Specification was not built by InitDefaults.
	NotInitialised
	// RangeInvalid means a software sweep's start offset is not
	// strictly greater than its end offset.
	RangeInvalid
	// NoWorkload means the specification has no workload function.
	NoWorkload
	// NoStopPredicate means a repeating loop without an integrated
	// stop has no stop predicate to poll.
	NoStopPredicate
	// MsrInaccessible means the MSR device node could not be opened.
	MsrInaccessible
	// NoTeensyPath means hardware mode has no Teensy device path.
	NoTeensyPath
	// NoTriggerPath means hardware mode has no trigger device path.
	NoTriggerPath
	// TeensyWriteFailed means a write to the Teensy line failed or
	// was short.
	TeensyWriteFailed
	// HardwareInitFailed means opening or configuring a hardware
	// serial line failed.
	HardwareInitFailed
)

var messages = map[Kind]string{
	Generic:             "plundervolt: generic error",
	NotInitialised:       "plundervolt: specification was not initialised",
	RangeInvalid:         "plundervolt: start offset must be greater than end offset for a descending sweep",
	NoWorkload:           "plundervolt: no workload function provided",
	NoStopPredicate:      "plundervolt: repeating loop without integrated stop requires a stop predicate",
	MsrInaccessible:      "plundervolt: could not access /dev/cpu/0/msr (load the msr kernel module and run as root)",
	NoTeensyPath:         "plundervolt: no teensy serial device path provided",
	NoTriggerPath:        "plundervolt: no trigger serial device path provided",
	TeensyWriteFailed:    "plundervolt: write to teensy failed",
	HardwareInitFailed:   "plundervolt: hardware initialisation failed",
}

// Error is the engine's error type: a fixed kind plus, for kinds that
// wrap a lower-level failure, the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := messages[e.Kind]
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind,
// supporting errors.Is(err, &Error{Kind: SomeKind}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Sentinel errors for errors.Is comparisons against a fixed kind,
// e.g. errors.Is(err, ErrNoWorkload).
var (
	ErrGeneric            = &Error{Kind: Generic}
	ErrNotInitialised     = &Error{Kind: NotInitialised}
	ErrRangeInvalid       = &Error{Kind: RangeInvalid}
	ErrNoWorkload         = &Error{Kind: NoWorkload}
	ErrNoStopPredicate    = &Error{Kind: NoStopPredicate}
	ErrMsrInaccessible    = &Error{Kind: MsrInaccessible}
	ErrNoTeensyPath       = &Error{Kind: NoTeensyPath}
	ErrNoTriggerPath      = &Error{Kind: NoTriggerPath}
	ErrTeensyWriteFailed  = &Error{Kind: TeensyWriteFailed}
	ErrHardwareInitFailed = &Error{Kind: HardwareInitFailed}
)

// ErrorMessage returns the fixed human-readable label for an error
// kind, for callers that received a Kind value directly (e.g. across
// a binding boundary) rather than an *Error.
func ErrorMessage(kind Kind) string {
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return messages[Generic]
}
