package async

import (
	"runtime/debug"

	"github.com/platinummonkey/eventbus/pkg/observability"
)

// SafeGo executes fn in a new goroutine with panic recovery. A panic is
// logged with its stack trace and does not crash the process.
//
// Use this instead of bare `go func()` for goroutines that run foreign code.
//
// Example:
//
//	SafeGo(logger, "unpooled worker", func() {
//	    loop.Run(ctx)
//	})
func SafeGo(logger *observability.Logger, taskName string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("PANIC recovered in goroutine")
			}
		}()

		fn()
	}()
}
