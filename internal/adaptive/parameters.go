package adaptive

import "time"

// CongestionControl selects the QUIC congestion controller, matching
// the protocol's negotiated algorithm choices.
type CongestionControl string

const (
	CongestionControlCubic   CongestionControl = "cubic"
	CongestionControlBBR2    CongestionControl = "bbr2"
	CongestionControlNewReno CongestionControl = "new_reno"
)

// ConnectionParameters are the QUIC transport knobs this package tunes
// in response to detected network conditions.
type ConnectionParameters struct {
	StreamWindow       uint64
	ConnectionWindow   uint64
	MaxStreams         uint32
	MaxDatagramSize    uint16
	KeepAliveInterval  time.Duration
	IdleTimeout        time.Duration
	CongestionControl  CongestionControl
	SendBufferSize     int
	ReceiveBufferSize  int
}

// DefaultConnectionParameters mirrors the Standard tier preset and is
// used before the first adaptation runs.
func DefaultConnectionParameters() ConnectionParameters {
	return presetForTier(TierStandard)
}

// presetForTier returns the fixed parameter set for tier.
func presetForTier(tier Tier) ConnectionParameters {
	switch tier {
	case TierSlow:
		return ConnectionParameters{
			StreamWindow:      256 * 1024,
			ConnectionWindow:  512 * 1024,
			MaxStreams:        10,
			MaxDatagramSize:   1200,
			KeepAliveInterval: 60 * time.Second,
			IdleTimeout:       300 * time.Second,
			CongestionControl: CongestionControlNewReno,
			SendBufferSize:    128 * 1024,
			ReceiveBufferSize: 128 * 1024,
		}
	case TierHome:
		return ConnectionParameters{
			StreamWindow:      2 * 1024 * 1024,
			ConnectionWindow:  4 * 1024 * 1024,
			MaxStreams:        50,
			MaxDatagramSize:   1500,
			KeepAliveInterval: 45 * time.Second,
			IdleTimeout:       180 * time.Second,
			CongestionControl: CongestionControlCubic,
			SendBufferSize:    1024 * 1024,
			ReceiveBufferSize: 1024 * 1024,
		}
	case TierPerformance:
		return ConnectionParameters{
			StreamWindow:      16 * 1024 * 1024,
			ConnectionWindow:  32 * 1024 * 1024,
			MaxStreams:        200,
			MaxDatagramSize:   9000,
			KeepAliveInterval: 20 * time.Second,
			IdleTimeout:       90 * time.Second,
			CongestionControl: CongestionControlBBR2,
			SendBufferSize:    8 * 1024 * 1024,
			ReceiveBufferSize: 8 * 1024 * 1024,
		}
	case TierEnterprise, TierDataCenter:
		return ConnectionParameters{
			StreamWindow:      32 * 1024 * 1024,
			ConnectionWindow:  64 * 1024 * 1024,
			MaxStreams:        1000,
			MaxDatagramSize:   9000,
			KeepAliveInterval: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			CongestionControl: CongestionControlBBR2,
			SendBufferSize:    16 * 1024 * 1024,
			ReceiveBufferSize: 16 * 1024 * 1024,
		}
	default: // TierStandard
		return ConnectionParameters{
			StreamWindow:      8 * 1024 * 1024,
			ConnectionWindow:  16 * 1024 * 1024,
			MaxStreams:        100,
			MaxDatagramSize:   9000,
			KeepAliveInterval: 30 * time.Second,
			IdleTimeout:       120 * time.Second,
			CongestionControl: CongestionControlBBR2,
			SendBufferSize:    4 * 1024 * 1024,
			ReceiveBufferSize: 4 * 1024 * 1024,
		}
	}
}
