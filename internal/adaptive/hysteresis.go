package adaptive

import (
	"sync"
	"time"
)

// DefaultMinTierStability is the minimum time a connection must spend
// on a tier before it is eligible to change again.
const DefaultMinTierStability = 5 * time.Second

// DefaultRequiredConsecutive is the number of consecutive differing
// measurements required before a tier change is allowed through.
const DefaultRequiredConsecutive = 3

// hysteresisState prevents parameter thrashing from transient
// measurement noise: a tier change is only accepted once it has been
// observed consistently for several consecutive checks, and not before
// the minimum stability window since the last change has elapsed.
type hysteresisState struct {
	mu                 sync.Mutex
	consecutiveCount   uint32
	previousTier       Tier
	hasPreviousTier    bool
	lastTierChange     time.Time
	minTierStability   time.Duration
	requiredConsective uint32
}

func newHysteresisState() *hysteresisState {
	return &hysteresisState{
		lastTierChange:     time.Now(),
		minTierStability:   DefaultMinTierStability,
		requiredConsective: DefaultRequiredConsecutive,
	}
}

// shouldAdapt reports whether currentTier should change to newTier,
// updating internal gating state as a side effect.
func (h *hysteresisState) shouldAdapt(currentTier, newTier Tier) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if currentTier == newTier {
		h.consecutiveCount = 0
		return false
	}

	if time.Since(h.lastTierChange) < h.minTierStability {
		return false
	}

	h.consecutiveCount++
	if h.consecutiveCount >= h.requiredConsective {
		h.consecutiveCount = 0
		h.lastTierChange = time.Now()
		return true
	}
	return false
}

// forceReady bypasses both the consecutive-measurement requirement and
// the minimum stability window for the next shouldAdapt call, used by
// force-adapt.
func (h *hysteresisState) forceReady() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveCount = h.requiredConsective
	h.lastTierChange = time.Now().Add(-h.minTierStability - time.Second)
}
