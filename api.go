// Package tracekit provides a lightweight, thread-safe distributed tracing
// client.
//
// tracekit focuses on span creation, context propagation and trace assembly
// without the weight of a full telemetry framework. It's designed for
// services that need low-overhead instrumentation with predictable
// performance and an explicit, narrow integration surface.
//
// Core Components:
//   - Tracer: creates and parents spans, dispatches inject/extract.
//   - Span: a single timed unit of work with tags and logs.
//   - SpanContext: the propagable identity of a span (trace id, span id,
//     sampling priority, baggage).
//   - ScopeManager: explicit active-span tracking for one logical thread
//     of control.
//   - TraceRecorder: assembles finished spans into complete traces.
//   - AgentWriter: batches completed traces and ships them to a collector.
//
// Basic Usage:
//
//	tracer, err := tracekit.New(tracekit.Config{ServiceName: "checkout"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tracer.Close()
//
//	ctx, span := tracer.StartSpanFromContext(ctx, "charge-card")
//	defer span.Finish()
//
//	span.SetTag("customer.tier", "gold")
//
//	// Child operations pick up the parent from the context.
//	_, child := tracer.StartSpanFromContext(ctx, "persist-receipt")
//	defer child.Finish()
//
// Cross-process propagation:
//
//	carrier := tracekit.TextMapCarrier{}
//	if err := tracer.Inject(span.Context(), tracekit.FormatTextMap, carrier); err != nil {
//		// UnsupportedFormatError or InvalidCarrierError; local misuse is loud.
//	}
//	// ...on the receiving side:
//	parent, _ := tracer.Extract(tracekit.FormatTextMap, carrier)
//	_, remote := tracer.StartSpanFromContext(ctx, "handle", tracekit.ChildOf(parent))
//
// Thread Safety:
//
// Tracer is safe for concurrent use by multiple goroutines. Span mutators
// are safe for concurrent use. ScopeManager is intentionally NOT locked:
// each logical thread of control owns its own manager exclusively.
//
// Extraction never fails on corrupted or stale propagation data; it
// degrades to whatever valid fields were found. Local errors (unknown
// format, bad carrier, bad configuration) are returned synchronously.
package tracekit

// Format identifies a registered context-propagation codec.
type Format string

// Built-in propagation formats.
const (
	// FormatHTTPHeaders encodes a SpanContext into a case-insensitive,
	// header-safe key namespace with percent-encoded baggage.
	FormatHTTPHeaders Format = "http-headers"

	// FormatTextMap encodes a SpanContext into plain string keys suitable
	// for arbitrary string-keyed carriers.
	FormatTextMap Format = "text-map"
)

// SamplingPriority is the sampling decision attached once per trace and
// inherited unchanged by all descendant spans.
type SamplingPriority int

// Sampling priorities, ordered from drop to keep.
const (
	// PriorityUserReject is an explicit user decision to drop the trace.
	PriorityUserReject SamplingPriority = -1

	// PriorityAutoReject is a sampler decision to drop the trace.
	PriorityAutoReject SamplingPriority = 0

	// PriorityAutoKeep is a sampler decision to keep the trace.
	PriorityAutoKeep SamplingPriority = 1

	// PriorityUserKeep is an explicit user decision to keep the trace.
	PriorityUserKeep SamplingPriority = 2
)

// Sampler assigns a sampling decision to a new trace. Sample is consulted
// exactly once, when a root span is created.
type Sampler interface {
	Sample(traceID uint64) SamplingPriority
}

// Recorder accepts finished spans. Record must not block the caller
// indefinitely; implementations are expected to enqueue and return.
type Recorder interface {
	Record(span SpanData)
}

// TraceWriter receives completed traces from a recorder, ordered per the
// trace-assembly contract. WriteTrace may be invoked while the recorder
// holds its lock and must therefore enqueue and return.
type TraceWriter interface {
	WriteTrace(trace []SpanData)
}
