package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with structured logging
//
// Usage in defer statements:
//
//	func (w *worker) run() {
//	    defer observability.RecoverPanic(logger, "pool worker")
//	    // ... code that might panic
//	}
//
// After logging, the panic is NOT re-raised. The function returns normally.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and executes a callback
//
// The callback only runs if a panic occurred. Typical uses are releasing a
// waiter or resetting per-worker bookkeeping.
func RecoverPanicWithCallback(logger *Logger, context string, callback func()) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
		if callback != nil {
			callback()
		}
	}
}

// RecoverToError recovers from a panic, logs it and stores it in *errp
//
// Usage when a panicking call must surface as an error:
//
//	func invoke(h Handler, ev Event) (err error) {
//	    defer observability.RecoverToError(logger, "handler", &err)
//	    return h.Handle(ctx, ev)
//	}
func RecoverToError(logger *Logger, context string, errp *error) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
		if errp != nil {
			*errp = MustRecover(r)
		}
	}
}

// MustRecover converts a recovered value to an error
//
// If a panic occurred, returns an error describing the panic.
// If no panic (r is nil), returns nil.
//
// Note: The stack trace is NOT included in the error. Use RecoverPanic
// for structured logging with full stack traces.
func MustRecover(r interface{}) error {
	if r != nil {
		if err, ok := r.(error); ok {
			return fmt.Errorf("panic: %w", err)
		}
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}

func logPanic(logger *Logger, context string, r interface{}) {
	if logger == nil {
		return
	}
	logger.WithField("panic", fmt.Sprint(r)).
		WithField("stack", string(debug.Stack())).
		WithField("context", context).
		Error("PANIC recovered")
}
