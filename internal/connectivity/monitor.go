// Package connectivity tracks whether the language-service provider is
// reachable and fires an edge-triggered event on each offline-to-online
// transition.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samvaadcop/orchestrator/internal/metrics"
	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
)

// Prober is the liveness slice of the service client.
type Prober interface {
	Probe(ctx context.Context) contracts.ProbeResult
}

// DefaultInterval is the probe period when none is configured.
const DefaultInterval = 15 * time.Second

// Monitor polls a prober and publishes an online/offline signal. It starts
// offline until the first probe or an explicit SetOnline.
type Monitor struct {
	mu       sync.Mutex
	online   bool
	onOnline []func()

	prober   Prober
	interval time.Duration
	log      *slog.Logger
}

// NewMonitor builds a monitor over prober polling every interval.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		log:      slog.Default(),
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers fn to run once per offline-to-online transition.
// Callbacks run synchronously on the goroutine that observed the edge.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// SetOnline records a connectivity observation, firing the online callbacks
// when the state flips from offline to online. It also backs the kiosk's
// manual force-offline switch.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	becameOnline := online && !m.online
	changed := online != m.online
	m.online = online
	var callbacks []func()
	if becameOnline {
		callbacks = append(callbacks, m.onOnline...)
	}
	m.mu.Unlock()

	if online {
		metrics.ConnectivityOnline.Set(1)
	} else {
		metrics.ConnectivityOnline.Set(0)
	}
	if changed {
		m.log.Info("connectivity changed", "online", online)
	}
	for _, fn := range callbacks {
		fn()
	}
}

// Run polls the prober until ctx is cancelled. The first probe happens
// immediately so startup state does not wait a full interval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	result := m.prober.Probe(ctx)
	m.SetOnline(result.Up)
}
