// internal/service/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher is the periodic ticking scheduler. Each tick claims due
// messages and executes them; claiming is atomic, so running extra
// dispatcher instances only shards the work.
type Dispatcher struct {
	svc       *Service
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewDispatcher(svc *Service, interval time.Duration, batchSize int, logger *zap.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		svc:       svc,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run ticks until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			if n := d.svc.DispatchDue(ctx, d.batchSize); n > 0 {
				d.logger.Info("dispatch tick completed", zap.Int("dispatched", n))
			}
		}
	}
}
