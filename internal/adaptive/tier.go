// Package adaptive continuously measures live connection conditions
// and retunes QUIC transport parameters to match the network tier the
// connection is actually running on, gated by hysteresis so transient
// spikes don't cause parameter thrashing.
package adaptive

import "fmt"

// Tier classifies the network a connection is currently running over.
type Tier int

const (
	TierSlow Tier = iota
	TierHome
	TierStandard
	TierPerformance
	TierEnterprise
	TierDataCenter
)

func (t Tier) String() string {
	switch t {
	case TierSlow:
		return "slow"
	case TierHome:
		return "home"
	case TierStandard:
		return "standard"
	case TierPerformance:
		return "performance"
	case TierEnterprise:
		return "enterprise"
	case TierDataCenter:
		return "datacenter"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// TierFromGbps classifies a throughput estimate (in gigabits/sec) into
// a Tier using the same breakpoints regardless of measurement noise:
// >=25 Gbps data center, >=10 enterprise, >=2.5 performance, >=1
// standard, >=100 Mbps home broadband, else slow.
func TierFromGbps(gbps float64) Tier {
	mbps := gbps * 1000.0
	switch {
	case gbps >= 25.0:
		return TierDataCenter
	case gbps >= 10.0:
		return TierEnterprise
	case gbps >= 2.5:
		return TierPerformance
	case gbps >= 1.0:
		return TierStandard
	case mbps >= 100.0:
		return TierHome
	default:
		return TierSlow
	}
}
