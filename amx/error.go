package amx

import "errors"

// Error is an abstract machine status code. The zero value, ErrNone,
// means success and is never returned as a non-nil error.
type Error int

const (
	ErrNone Error = iota
	ErrExit
	ErrAssert
	ErrStackErr
	ErrBounds
	ErrMemAccess
	ErrInvInstr
	ErrStackLow
	ErrHeapLow
	ErrCallback
	ErrNative
	ErrDivide
	ErrSleep
	ErrInvState
)

const (
	ErrMemory Error = iota + 16
	ErrFormat
	ErrVersion
	ErrNotFound
	ErrIndex
	ErrDebug
	ErrInit
	ErrUserData
	ErrInitJIT
	ErrParams
	ErrDomain
	ErrGeneral
)

var errorMessages = map[Error]string{
	ErrNone:      "(none)",
	ErrExit:      "Forced exit",
	ErrAssert:    "Assertion failed",
	ErrStackErr:  "Stack/heap collision (insufficient stack size)",
	ErrBounds:    "Array index out of bounds",
	ErrMemAccess: "Invalid memory access",
	ErrInvInstr:  "Invalid instruction",
	ErrStackLow:  "Stack underflow",
	ErrHeapLow:   "Heap underflow",
	ErrCallback:  "No (valid) native function callback",
	ErrNative:    "Native function failed",
	ErrDivide:    "Divide by zero",
	ErrSleep:     "(sleep mode)",
	ErrInvState:  "Invalid state for this access",
	ErrMemory:    "Out of memory",
	ErrFormat:    "Invalid/unsupported P-code file format",
	ErrVersion:   "File is for a newer version of the AMX",
	ErrNotFound:  "File or function is not found",
	ErrIndex:     "Invalid index parameter (bad entry point)",
	ErrDebug:     "Debugger cannot run",
	ErrInit:      "AMX not initialized (or doubly initialized)",
	ErrUserData:  "Unable to set user data field (table full)",
	ErrInitJIT:   "Cannot initialize the JIT",
	ErrParams:    "Parameter error",
	ErrDomain:    "Domain error, expression result does not fit in range",
	ErrGeneral:   "General error (unknown or unspecific error)",
}

// Error returns the conventional description for the status code. The
// wording matches what Pawn tooling has printed for decades, so scripts
// and log parsers see familiar text.
func (e Error) Error() string {
	if msg, ok := errorMessages[e]; ok {
		return msg
	}
	return "(unknown)"
}

// Code returns the numeric value of the status code.
func (e Error) Code() int {
	return int(e)
}

// CodeOf extracts the machine status code carried by err. A nil error
// maps to ErrNone and an error with no embedded status to ErrGeneral.
func CodeOf(err error) Error {
	if err == nil {
		return ErrNone
	}
	var e Error
	if errors.As(err, &e) {
		return e
	}
	return ErrGeneral
}
