package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic converts a recovered panic value into a fatal internal error
// carrying the stack trace, so a panicking handler lands in the dead-letter
// stream instead of killing the consume loop.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	var cause error
	switch v := r.(type) {
	case error:
		cause = v
	case string:
		cause = fmt.Errorf("panic: %s", v)
	default:
		cause = fmt.Errorf("panic: %v", v)
	}

	return New(KindInternal, fmt.Sprintf("panic during processing: %v\n%s", cause, debug.Stack())).
		WithCause(cause).
		AsFatal()
}
