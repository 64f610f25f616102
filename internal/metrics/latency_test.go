package metrics

import (
	"testing"
	"time"
)

func TestLatencyRingPercentile(t *testing.T) {
	r := NewLatencyRing(10)
	for i := 1; i <= 10; i++ {
		r.Record(time.Duration(i) * time.Millisecond)
	}

	p50 := r.Percentile(50)
	if p50 < 4*time.Millisecond || p50 > 6*time.Millisecond {
		t.Errorf("expected p50 around 5ms, got %v", p50)
	}

	p100 := r.Percentile(100)
	if p100 != 10*time.Millisecond {
		t.Errorf("expected p100 = 10ms, got %v", p100)
	}
}

func TestLatencyRingEmpty(t *testing.T) {
	r := NewLatencyRing(10)
	if p := r.Percentile(50); p != 0 {
		t.Errorf("expected 0 for empty ring, got %v", p)
	}
}

func TestLatencyRingWraps(t *testing.T) {
	r := NewLatencyRing(3)
	for i := 1; i <= 5; i++ {
		r.Record(time.Duration(i) * time.Millisecond)
	}
	// Only the last 3 samples (3,4,5ms) should remain.
	p100 := r.Percentile(100)
	if p100 != 5*time.Millisecond {
		t.Errorf("expected p100 = 5ms after wrap, got %v", p100)
	}
}
