package utils

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
)

// RecoverFn is a function that handles a recovered panic
type RecoverFn func(r interface{}, stack []byte)

// SafeGo executes the given function in a goroutine with panic recovery
func SafeGo(fn func(), onPanic RecoverFn) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if onPanic != nil {
					onPanic(r, stack)
				} else {
					LogPanic(context.Background(), "goroutine", r, stack)
				}
			}
		}()
		fn()
	}()
}

// SafeGoWait runs fn in a goroutine tracked by wg. The group is marked done
// exactly once whether fn returns or panics; a panic is logged under operation.
func SafeGoWait(wg *sync.WaitGroup, operation string, fn func()) {
	wg.Add(1)
	SafeGo(func() {
		defer wg.Done()
		fn()
	}, func(r interface{}, stack []byte) {
		LogPanic(context.Background(), operation, r, stack)
	})
}

// LogPanic writes a recovered panic to the context logger, falling back to stderr.
func LogPanic(ctx context.Context, operation string, r interface{}, stack []byte) {
	log := logger.FromContext(ctx)
	if log == nil {
		// Last resort: print to stderr
		fmt.Fprintf(os.Stderr, "[PANIC] Recovered from panic during %s: %v\n%s\n", operation, r, stack)
		return
	}
	log.Error(fmt.Sprintf("[panic] Recovered from panic during %s", operation),
		zap.Any("panic", r),
		zap.ByteString("stack", stack),
		zap.Time("recovery_time", time.Now()),
	)
}

// WrapWithContextRecovery wraps a function that takes a context with panic recovery
func WrapWithContextRecovery(fn func(ctx context.Context) error) func(ctx context.Context) (err error) {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				LogPanic(ctx, "context call", r, debug.Stack())
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()
		return fn(ctx)
	}
}
