package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/application"
	"github.com/DanielPopoola/fetchcache/internal/metrics"
)

// ConnectivityMonitor polls a prober in the background and serves the last
// answer, so callers read connectivity without paying for a probe.
// Until the first probe completes it reports online.
type ConnectivityMonitor struct {
	prober   application.ConnectivityProber
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	online atomic.Bool

	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(online bool)
}

func NewConnectivityMonitor(
	prober application.ConnectivityProber,
	interval time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ConnectivityMonitor {
	w := &ConnectivityMonitor{
		prober:      prober,
		interval:    interval,
		metrics:     m,
		logger:      logger,
		subscribers: make(map[int]func(bool)),
	}
	w.online.Store(true)
	m.SetOnline(true)
	return w
}

func (w *ConnectivityMonitor) Start(ctx context.Context) {
	w.logger.Info("connectivity monitor started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("connectivity monitor stopping")
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *ConnectivityMonitor) IsOnline(context.Context) bool {
	return w.online.Load()
}

// Subscribe registers fn to be called on every online/offline transition.
// The returned func removes it.
func (w *ConnectivityMonitor) Subscribe(fn func(online bool)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	w.subscribers[id] = fn

	return func() {
		w.mu.Lock()
		delete(w.subscribers, id)
		w.mu.Unlock()
	}
}

func (w *ConnectivityMonitor) check(ctx context.Context) {
	online := w.prober.IsOnline(ctx)
	if ctx.Err() != nil {
		return
	}

	w.metrics.SetOnline(online)
	if w.online.Swap(online) == online {
		return
	}

	if online {
		w.logger.Info("connectivity restored")
	} else {
		w.logger.Warn("connectivity lost")
	}

	w.mu.Lock()
	subscribers := make([]func(bool), 0, len(w.subscribers))
	for _, fn := range w.subscribers {
		subscribers = append(subscribers, fn)
	}
	w.mu.Unlock()

	for _, fn := range subscribers {
		fn(online)
	}
}
