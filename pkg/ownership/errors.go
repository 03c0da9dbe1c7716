package ownership

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by Tracker operations. Match them with errors.Is.
var (
	ErrScopeUnderflow  = errors.New("exit without a matching enter")
	ErrUnknownName     = errors.New("no binding with that name is visible")
	ErrUseAfterMove    = errors.New("value used after move")
	ErrNoScope         = errors.New("no open scope")
	ErrImmutable       = errors.New("binding is not mutable")
	ErrAlreadyOwned    = errors.New("value is already owned by a live binding")
	ErrReleased        = errors.New("value has already been released")
	ErrPartialMove     = errors.New("cannot move a movable element out of its aggregate")
	ErrNotCompound     = errors.New("value is not a tuple or array")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrInvalidName     = errors.New("binding name must not be empty")
)

// codes maps sentinels to the stable names used in scenarios and traces.
var codes = []struct {
	err  error
	code string
}{
	{ErrScopeUnderflow, "ScopeUnderflow"},
	{ErrUnknownName, "UnknownName"},
	{ErrUseAfterMove, "UseAfterMove"},
	{ErrNoScope, "NoScope"},
	{ErrImmutable, "Immutable"},
	{ErrAlreadyOwned, "AlreadyOwned"},
	{ErrReleased, "Released"},
	{ErrPartialMove, "PartialMove"},
	{ErrNotCompound, "NotCompound"},
	{ErrIndexOutOfRange, "IndexOutOfRange"},
	{ErrInvalidName, "InvalidName"},
}

// Code returns the stable name of the error kind carried by err: "" for
// nil, "Error" for errors that wrap no tracker sentinel.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Error"
}

// OpError records the operation and binding name that failed.
type OpError struct {
	Op   Op
	Name string
	Err  error
}

func (e *OpError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
