package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/skillmarket/marketplace-backend/internal/logger"
)

// SafeGo запускает горутину с обработкой panic. Паника логируется со стеком,
// процесс продолжает работу.
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("panic в горутине: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("panic в горутине: %v\n%s", r, debug.Stack())
			}
		}()
		fn(ctx)
	}()
}
