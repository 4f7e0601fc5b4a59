package tracekit

// SpanContext is the immutable identity of a span's position in a trace:
// trace id, span id, sampling decision and baggage. The zero value carries
// no trace identity.
//
// SpanContext has snapshot semantics: mutating baggage or the sampling
// priority yields a new value, never an in-place change visible to prior
// holders. It is safe to copy and to share across goroutines.
type SpanContext struct {
	traceID  uint64
	spanID   uint64
	parentID uint64

	priority    SamplingPriority
	hasPriority bool

	// baggage is never mutated after construction; writers replace it.
	baggage map[string]string
}

// NewSpanContext creates a SpanContext with the given trace and span ids.
func NewSpanContext(traceID, spanID uint64) SpanContext {
	return SpanContext{traceID: traceID, spanID: spanID}
}

// TraceID returns the 64-bit identifier shared by every span in the trace.
// Zero means the context carries no trace identity.
func (c SpanContext) TraceID() uint64 { return c.traceID }

// SpanID returns the span's 64-bit identifier, unique within its trace.
func (c SpanContext) SpanID() uint64 { return c.spanID }

// ParentID returns the span id of the direct parent, or zero for roots.
func (c SpanContext) ParentID() uint64 { return c.parentID }

// HasTrace reports whether the context carries a usable trace identity.
func (c SpanContext) HasTrace() bool { return c.traceID != 0 && c.spanID != 0 }

// SamplingPriority returns the sampling decision and whether one is set.
func (c SpanContext) SamplingPriority() (SamplingPriority, bool) {
	return c.priority, c.hasPriority
}

// WithSamplingPriority returns a copy of the context carrying the given
// sampling decision.
func (c SpanContext) WithSamplingPriority(p SamplingPriority) SpanContext {
	c.priority = p
	c.hasPriority = true
	return c
}

// BaggageItem returns the baggage value for key, or "" if unset.
func (c SpanContext) BaggageItem(key string) string {
	return c.baggage[key]
}

// WithBaggageItem returns a new context whose baggage includes the given
// key/value pair. The receiver's baggage is untouched.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	baggage := make(map[string]string, len(c.baggage)+1)
	for k, v := range c.baggage {
		baggage[k] = v
	}
	baggage[key] = value
	c.baggage = baggage
	return c
}

// ForeachBaggageItem calls handler for each baggage pair until it returns
// false. Iteration order is unspecified.
func (c SpanContext) ForeachBaggageItem(handler func(key, value string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			return
		}
	}
}

// baggageCopy returns a detached copy of the baggage, or nil when empty.
func (c SpanContext) baggageCopy() map[string]string {
	if len(c.baggage) == 0 {
		return nil
	}
	baggage := make(map[string]string, len(c.baggage))
	for k, v := range c.baggage {
		baggage[k] = v
	}
	return baggage
}
