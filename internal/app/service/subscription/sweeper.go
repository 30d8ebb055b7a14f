package subscription

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/subscriptions/pkg/config"
)

// Sweeper runs SweepExpired once at startup and then every interval.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *zap.SugaredLogger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(svc *Service, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{svc: svc, interval: cfg.Sweep.Interval, log: log}
}

func (w *Sweeper) sweep(ctx context.Context, trigger string) {
	n, err := w.svc.SweepExpired(ctx)
	if err != nil {
		w.log.Warnw("expiry sweep failed", "trigger", trigger, "err", err)
		return
	}
	w.log.Infow("expiry sweep completed", "trigger", trigger, "expired", n)
}

// Start performs the startup sweep and launches the periodic loop. A failed startup
// sweep is logged and does not prevent the service from starting.
func (w *Sweeper) Start(ctx context.Context) error {
	w.sweep(ctx, "startup")
	if w.interval <= 0 {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx)
	return nil
}

func (w *Sweeper) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, "periodic")
		}
	}
}

func (w *Sweeper) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func registerSweeper(lc fx.Lifecycle, cfg *cfgpkg.Config, w *Sweeper) {
	if !cfg.Sweep.Enabled {
		return
	}
	lc.Append(fx.Hook{OnStart: w.Start, OnStop: w.Stop})
}
