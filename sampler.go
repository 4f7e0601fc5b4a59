package tracekit

import "math"

// knuthFactor is the multiplicative hashing constant used to spread random
// trace ids uniformly before the rate cutoff comparison.
const knuthFactor = uint64(1111111111111111111)

// AllSampler keeps every trace.
type AllSampler struct{}

// Sample always returns PriorityAutoKeep.
func (AllSampler) Sample(uint64) SamplingPriority {
	return PriorityAutoKeep
}

// RateSampler keeps a deterministic fraction of traces based on their
// trace id, so the same trace id always yields the same decision across
// processes.
type RateSampler struct {
	rate      float64
	threshold uint64
}

// NewRateSampler creates a sampler keeping the given fraction of traces.
// Rates outside [0, 1] are clamped.
func NewRateSampler(rate float64) *RateSampler {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &RateSampler{
		rate:      rate,
		threshold: uint64(rate * math.MaxUint64),
	}
}

// Rate returns the configured sampling rate.
func (s *RateSampler) Rate() float64 {
	return s.rate
}

// Sample hashes the trace id and keeps it when it lands under the rate
// threshold.
func (s *RateSampler) Sample(traceID uint64) SamplingPriority {
	if s.rate == 1 {
		return PriorityAutoKeep
	}
	if s.rate == 0 {
		return PriorityAutoReject
	}
	if traceID*knuthFactor < s.threshold {
		return PriorityAutoKeep
	}
	return PriorityAutoReject
}
