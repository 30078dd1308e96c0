package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reloader is implemented by *Registry.
type Reloader interface {
	Reload(ctx context.Context) error
}

// StartAutoReload refreshes r from its backend every interval until ctx is
// done, so edits made by another front end on the same store become
// visible. Failures are logged and retried on the next tick.
func StartAutoReload(ctx context.Context, r Reloader, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Reload(ctx); err != nil {
					log.Error("failed to reload registry", zap.Error(err))
				}
			}
		}
	}()
}
