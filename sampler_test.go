package tracekit

import "testing"

func TestAllSamplerKeepsEverything(t *testing.T) {
	sampler := AllSampler{}
	for _, traceID := range []uint64{0, 1, 42, 1 << 63} {
		if sampler.Sample(traceID) != PriorityAutoKeep {
			t.Errorf("Expected PriorityAutoKeep for trace %d", traceID)
		}
	}
}

func TestRateSamplerExtremes(t *testing.T) {
	keep := NewRateSampler(1)
	reject := NewRateSampler(0)

	for _, traceID := range []uint64{1, 99, 1 << 40} {
		if keep.Sample(traceID) != PriorityAutoKeep {
			t.Errorf("Expected rate 1 to keep trace %d", traceID)
		}
		if reject.Sample(traceID) != PriorityAutoReject {
			t.Errorf("Expected rate 0 to reject trace %d", traceID)
		}
	}
}

func TestRateSamplerClampsRate(t *testing.T) {
	if NewRateSampler(-0.5).Rate() != 0 {
		t.Error("Expected negative rate clamped to 0")
	}
	if NewRateSampler(1.5).Rate() != 1 {
		t.Error("Expected rate above 1 clamped to 1")
	}
}

func TestRateSamplerIsDeterministic(t *testing.T) {
	sampler := NewRateSampler(0.5)

	// The same trace id must always get the same decision, so sibling
	// processes agree without coordination.
	for traceID := uint64(1); traceID <= 100; traceID++ {
		first := sampler.Sample(traceID)
		for i := 0; i < 10; i++ {
			if sampler.Sample(traceID) != first {
				t.Fatalf("Decision for trace %d changed between calls", traceID)
			}
		}
	}
}

func TestRateSamplerApproximatesRate(t *testing.T) {
	sampler := NewRateSampler(0.5)

	// The knuth hash spreads sequential ids uniformly; over a large window
	// the keep fraction should be near the configured rate.
	kept := 0
	const total = 10000
	for traceID := uint64(1); traceID <= total; traceID++ {
		if sampler.Sample(traceID) == PriorityAutoKeep {
			kept++
		}
	}
	fraction := float64(kept) / total
	if fraction < 0.4 || fraction > 0.6 {
		t.Errorf("Expected keep fraction near 0.5, got %f", fraction)
	}
}
