package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/approvhq/approv-backend/internal/logger"
)

// SafeGo запускает горутину с обработкой panic.
// Используется для всех fire-and-forget побочных эффектов (письма, аудит,
// уведомления), чтобы паника фоновой работы не уронила процесс.
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithComponent("goroutine").
					Errorf("panic в горутине: %v\n%s", r, debug.Stack())
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
				logger.WithComponent("goroutine").
					Errorf("panic в горутине: %v\n%s", r, debug.Stack())
			}
		}()
		fn(ctx)
	}()
}
