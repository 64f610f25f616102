package adaptive

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/stoq-transport/stoq/internal/logging"
	"github.com/stoq-transport/stoq/internal/metrics"
)

// Controller tracks one connection's live network conditions and
// retunes its transport parameters as conditions change. QUIC does not
// support updating an established connection's transport parameters in
// place, so Controller instead produces the *quic.Config a reconnect
// or connection-migration path should use next, and exposes the tier
// transition for callers (e.g. the event stream) to observe.
type Controller struct {
	mu         sync.RWMutex
	tier       Tier
	conditions Conditions
	parameters ConnectionParameters

	enabled    atomic.Bool
	hysteresis *hysteresisState

	adaptationCount atomic.Uint64
	lastAdaptation  atomic.Value // time.Time

	metrics *metrics.Counters
}

// NewController returns a Controller initialized to the Standard tier,
// adaptation enabled.
func NewController(m *metrics.Counters) *Controller {
	c := &Controller{
		tier:       TierStandard,
		conditions: DefaultConditions(),
		parameters: DefaultConnectionParameters(),
		hysteresis: newHysteresisState(),
		metrics:    m,
	}
	c.enabled.Store(true)
	c.lastAdaptation.Store(time.Now())
	return c
}

// UpdateConditions records a fresh measurement sample. Jitter is
// derived as the absolute delta from the previous RTT sample.
func (c *Controller) UpdateConditions(rtt time.Duration, packetLossPercent, throughputMbps float64, retransmissions uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevRTT := c.conditions.RTT
	c.conditions.RTT = rtt
	if prevRTT > 0 {
		delta := rtt - prevRTT
		if delta < 0 {
			delta = -delta
		}
		c.conditions.Jitter = delta
	}
	c.conditions.PacketLossPercent = packetLossPercent
	c.conditions.ThroughputMbps = throughputMbps
	c.conditions.Retransmissions = retransmissions
	c.conditions.LastUpdate = time.Now()

	logging.Debug("updated network conditions",
		zap.Duration("rtt", rtt),
		zap.Float64("packet_loss_percent", packetLossPercent),
		zap.Float64("throughput_mbps", throughputMbps))
}

// Adapt evaluates current conditions and, if hysteresis allows it,
// switches to the newly detected tier and its parameter preset.
// Returns true if a transition happened.
func (c *Controller) Adapt() bool {
	if !c.enabled.Load() {
		return false
	}

	c.mu.RLock()
	conditions := c.conditions
	currentTier := c.tier
	c.mu.RUnlock()

	detected := DetectTier(conditions)
	if !c.hysteresis.shouldAdapt(currentTier, detected) {
		return false
	}

	c.mu.Lock()
	c.tier = detected
	c.parameters = presetForTier(detected)
	c.mu.Unlock()

	c.adaptationCount.Add(1)
	c.lastAdaptation.Store(time.Now())
	if c.metrics != nil {
		c.metrics.RecordAdaptation()
	}

	logging.Info("connection adapted", zap.String("tier", detected.String()), zap.Uint64("adaptation_count", c.adaptationCount.Load()))
	return true
}

// ForceAdapt bypasses both the hysteresis consecutive-measurement gate
// and the minimum stability window, and immediately re-evaluates.
func (c *Controller) ForceAdapt() bool {
	c.hysteresis.forceReady()
	return c.Adapt()
}

// SetTier forces the controller to a specific tier and its parameter
// preset immediately, bypassing hysteresis entirely. Used for explicit
// operator overrides (set_connection_tier) rather than measurement-
// driven adaptation.
func (c *Controller) SetTier(tier Tier) {
	c.mu.Lock()
	c.tier = tier
	c.parameters = presetForTier(tier)
	c.mu.Unlock()

	c.adaptationCount.Add(1)
	c.lastAdaptation.Store(time.Now())
	if c.metrics != nil {
		c.metrics.RecordAdaptation()
	}
	logging.Info("connection tier set explicitly", zap.String("tier", tier.String()))
}

// SetParameters overwrites the live parameter set directly, without
// touching the tracked tier or hysteresis state. Used to apply an
// operator-supplied configuration to an already-open connection
// without a reconnect.
func (c *Controller) SetParameters(params ConnectionParameters) {
	c.mu.Lock()
	c.parameters = params
	c.mu.Unlock()

	c.adaptationCount.Add(1)
	c.lastAdaptation.Store(time.Now())
	if c.metrics != nil {
		c.metrics.RecordAdaptation()
	}
	logging.Info("connection parameters updated from live config")
}

// SetAdaptationEnabled toggles whether Adapt does anything.
func (c *Controller) SetAdaptationEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Tier returns the current tier.
func (c *Controller) Tier() Tier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tier
}

// Parameters returns the current connection parameter preset.
func (c *Controller) Parameters() ConnectionParameters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parameters
}

// Stats summarizes adaptation activity for diagnostics and the event
// stream.
type Stats struct {
	AdaptationCount uint64
	LastAdaptation  time.Time
	Tier            Tier
	Enabled         bool
}

// Stats returns a snapshot of adaptation activity.
func (c *Controller) Stats() Stats {
	return Stats{
		AdaptationCount: c.adaptationCount.Load(),
		LastAdaptation:  c.lastAdaptation.Load().(time.Time),
		Tier:            c.Tier(),
		Enabled:         c.enabled.Load(),
	}
}

// QUICConfig builds a *quic.Config reflecting the current parameter
// preset, for use the next time this peer establishes or migrates a
// connection. Congestion control selection is logged only: quic-go
// does not expose a pluggable per-connection congestion controller.
func (c *Controller) QUICConfig() *quic.Config {
	params := c.Parameters()

	logging.Debug("would apply congestion control", zap.String("algorithm", string(params.CongestionControl)))

	return &quic.Config{
		MaxIdleTimeout:                 params.IdleTimeout,
		KeepAlivePeriod:                params.KeepAliveInterval,
		InitialStreamReceiveWindow:     params.StreamWindow,
		MaxStreamReceiveWindow:         params.StreamWindow * 2,
		InitialConnectionReceiveWindow: params.ConnectionWindow,
		MaxConnectionReceiveWindow:     params.ConnectionWindow * 2,
		MaxIncomingStreams:             int64(params.MaxStreams),
		MaxIncomingUniStreams:          int64(params.MaxStreams / 2),
		EnableDatagrams:                true,
	}
}
