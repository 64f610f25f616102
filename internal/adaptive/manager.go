package adaptive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stoq-transport/stoq/internal/metrics"
)

// DefaultAdaptationInterval is how often the Manager re-evaluates all
// registered connections.
const DefaultAdaptationInterval = 5 * time.Second

// TransitionFunc is invoked whenever a registered connection's tier
// changes, letting callers (e.g. the event stream) broadcast it.
type TransitionFunc func(connectionID string, stats Stats)

// Manager runs the adaptation loop across every registered connection.
type Manager struct {
	connections sync.Map // string -> *Controller
	enabled     atomic.Bool
	interval    time.Duration
	metrics     *metrics.Counters
	onTransition TransitionFunc
}

// NewManager returns a Manager that re-evaluates connections every
// interval (DefaultAdaptationInterval if interval <= 0).
func NewManager(interval time.Duration, m *metrics.Counters, onTransition TransitionFunc) *Manager {
	if interval <= 0 {
		interval = DefaultAdaptationInterval
	}
	mgr := &Manager{interval: interval, metrics: m, onTransition: onTransition}
	mgr.enabled.Store(true)
	return mgr
}

// Register creates and tracks a Controller for connectionID.
func (m *Manager) Register(connectionID string) *Controller {
	c := NewController(m.metrics)
	m.connections.Store(connectionID, c)
	return c
}

// Unregister stops tracking connectionID.
func (m *Manager) Unregister(connectionID string) {
	m.connections.Delete(connectionID)
}

// Get returns the Controller for connectionID, if registered.
func (m *Manager) Get(connectionID string) (*Controller, bool) {
	v, ok := m.connections.Load(connectionID)
	if !ok {
		return nil, false
	}
	return v.(*Controller), true
}

// SetEnabled toggles adaptation globally across all connections.
func (m *Manager) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// Run evaluates every registered connection on interval until ctx is
// cancelled. Each adaptation runs independently so one slow evaluation
// doesn't delay the others.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.enabled.Load() {
				continue
			}
			m.connections.Range(func(key, value any) bool {
				id := key.(string)
				controller := value.(*Controller)
				go func() {
					if controller.Adapt() && m.onTransition != nil {
						m.onTransition(id, controller.Stats())
					}
				}()
				return true
			})
		}
	}
}

// SetConnectionTier forces connectionID to tier immediately, if it is
// registered.
func (m *Manager) SetConnectionTier(connectionID string, tier Tier) bool {
	c, ok := m.Get(connectionID)
	if !ok {
		return false
	}
	c.SetTier(tier)
	return true
}

// ForceConnectionAdaptation re-evaluates connectionID immediately,
// bypassing hysteresis, if it is registered.
func (m *Manager) ForceConnectionAdaptation(connectionID string) bool {
	c, ok := m.Get(connectionID)
	if !ok {
		return false
	}
	c.ForceAdapt()
	return true
}

// ApplyLiveConfig pushes params to every currently registered
// connection's controller, taking effect immediately with no
// reconnect.
func (m *Manager) ApplyLiveConfig(params ConnectionParameters) {
	m.connections.Range(func(_, value any) bool {
		value.(*Controller).SetParameters(params)
		return true
	})
}

// AutoDetectTiers forces an immediate re-evaluation of every
// registered connection, bypassing hysteresis, returning the number of
// connections whose tier changed as a result.
func (m *Manager) AutoDetectTiers() int {
	changed := 0
	m.connections.Range(func(key, value any) bool {
		id := key.(string)
		c := value.(*Controller)
		if c.ForceAdapt() {
			changed++
			if m.onTransition != nil {
				m.onTransition(id, c.Stats())
			}
		}
		return true
	})
	return changed
}

// AllStats returns adaptation statistics for every registered
// connection, keyed by connection ID.
func (m *Manager) AllStats() map[string]Stats {
	out := make(map[string]Stats)
	m.connections.Range(func(key, value any) bool {
		out[key.(string)] = value.(*Controller).Stats()
		return true
	})
	return out
}
