package telemetrypush

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	exportInterval = 15 * time.Second
	exportTimeout  = 5 * time.Second
)

// loop drives the pusher on a fixed cadence. Failures log once per
// streak so an unreachable collector does not flood the logs.
type loop struct {
	pusher   Pusher
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration

	stop    chan struct{}
	done    chan struct{}
	failing atomic.Bool
}

func newLoop(pusher Pusher, log *zap.Logger, interval, timeout time.Duration) *loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &loop{
		pusher:   pusher,
		log:      log,
		interval: interval,
		timeout:  timeout,
	}
}

func (l *loop) Start() {
	if l == nil || l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		l.pushOnce()
		for {
			select {
			case <-ticker.C:
				l.pushOnce()
			case <-l.stop:
				return
			}
		}
	}()
}

func (l *loop) Stop(ctx context.Context) error {
	if l == nil || l.stop == nil {
		return nil
	}
	close(l.stop)
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *loop) pushOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.pusher.Push(ctx); err != nil {
		if l.failing.CompareAndSwap(false, true) {
			l.log.Warn("telemetry push failed", zap.Error(err))
		}
		return
	}
	if l.failing.CompareAndSwap(true, false) {
		l.log.Info("telemetry push recovered")
	}
}
