package adaptive

import "time"

// Conditions captures the live measurements used to classify a
// connection's network tier.
type Conditions struct {
	RTT               time.Duration
	PacketLossPercent float64
	ThroughputMbps    float64
	BandwidthEstimate float64 // Mbps
	Retransmissions   uint64
	Jitter            time.Duration
	LastUpdate        time.Time
}

// DefaultConditions assumes a generous 1 Gbps link until real
// measurements arrive, matching the conservative-optimistic default
// used before a connection's first statistics sample.
func DefaultConditions() Conditions {
	return Conditions{
		BandwidthEstimate: 1000.0,
		LastUpdate:        time.Now(),
	}
}

// DetectTier classifies c into a Tier using bandwidth, RTT, loss and
// jitter penalties layered onto the raw estimate.
func DetectTier(c Conditions) Tier {
	estimatedGbps := c.BandwidthEstimate / 1000.0

	if c.ThroughputMbps > 0 {
		estimatedGbps = (estimatedGbps + (c.ThroughputMbps / 1000.0)) / 2.0
	}

	rttMs := float64(c.RTT) / float64(time.Millisecond)
	switch {
	case rttMs > 100.0:
		estimatedGbps *= 0.5
	case rttMs > 50.0:
		estimatedGbps *= 0.7
	case rttMs > 20.0:
		estimatedGbps *= 0.9
	}

	switch {
	case c.PacketLossPercent > 5.0:
		estimatedGbps *= 0.3
	case c.PacketLossPercent > 2.0:
		estimatedGbps *= 0.5
	case c.PacketLossPercent > 0.5:
		estimatedGbps *= 0.8
	}

	jitterMs := float64(c.Jitter) / float64(time.Millisecond)
	if jitterMs > 20.0 {
		estimatedGbps *= 0.7
	}

	return TierFromGbps(estimatedGbps)
}
