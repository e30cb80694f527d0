package utils

import (
	"fmt"
	"os"
	"runtime/debug"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"go.uber.org/zap"
)

// RecoverFn handles a recovered panic.
type RecoverFn func(r interface{}, stack []byte)

// SafeGo runs fn in a goroutine that cannot crash the process. A panic is
// passed to onPanic when provided, otherwise logged; the goroutine exits
// either way.
func SafeGo(fn func(), onPanic RecoverFn) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			if onPanic != nil {
				onPanic(r, stack)
				return
			}
			if logger.Log != nil {
				logger.Log.Error("[panic] Recovered from panic in goroutine",
					zap.Any("panic", r),
					zap.ByteString("stack", stack),
				)
				return
			}
			// Panic before logger init still has to leave a trace.
			fmt.Fprintf(os.Stderr, "[PANIC] Recovered from panic in goroutine: %v\n%s\n", r, stack)
		}()
		fn()
	}()
}
