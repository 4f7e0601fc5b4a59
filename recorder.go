package tracekit

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// TraceRecorder buffers finished spans keyed by trace id and emits each
// trace to a TraceWriter exactly once, when the trace is complete.
//
// Completion is reference counted: the tracer announces every span start
// via SpanStarted, and the trace is complete when all of its started spans
// have been recorded. Traces are emitted in finish order of their root
// spans: a completed trace is held back while a trace whose root finished
// earlier is still open. Within one trace, spans are emitted in their own
// finish order, with ties between concurrent finishers broken by a
// monotonic sequence counter rather than wall clock.
//
// Safe for concurrent use by multiple goroutines.
type TraceRecorder struct {
	mu      sync.Mutex
	writer  TraceWriter
	pending map[uint64]*pendingTrace
	seq     uint64

	log *slog.Logger

	flushed   atomic.Uint64
	lateSpans atomic.Uint64
}

// pendingTrace accumulates one trace until its reference count drains.
type pendingTrace struct {
	spans []SpanData

	// open counts started-but-unfinished spans.
	open int

	// rootSeq is the finish sequence of the trace's root span; zero until
	// the root finishes. Traces with only remote-parented spans get their
	// completion sequence instead.
	rootSeq uint64

	complete bool
}

// NewTraceRecorder creates a recorder emitting completed traces to writer.
// A nil logger discards defect reports.
func NewTraceRecorder(writer TraceWriter, logger *slog.Logger) *TraceRecorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TraceRecorder{
		writer:  writer,
		pending: make(map[uint64]*pendingTrace),
		log:     logger,
	}
}

// SpanStarted registers one started span with the trace's reference count.
// The tracer calls this for every span it creates.
func (r *TraceRecorder) SpanStarted(traceID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pt := r.pending[traceID]
	if pt == nil {
		pt = &pendingTrace{}
		r.pending[traceID] = pt
	}
	pt.open++
}

// Record accepts one finished span. Never blocks: grouping happens under a
// short critical section and the writer only enqueues.
func (r *TraceRecorder) Record(span SpanData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pt := r.pending[span.TraceID]
	if pt == nil {
		// A span reported without a matching SpanStarted: its trace was
		// already flushed or the recorder is wired without a tracer. Open
		// a fresh single-span bucket so nothing is lost or corrupted.
		r.lateSpans.Add(1)
		r.log.Debug("span reported for unknown trace",
			"trace_id", span.TraceID, "span_id", span.SpanID, "name", span.Name)
		pt = &pendingTrace{open: 1}
		r.pending[span.TraceID] = pt
	}

	r.seq++
	pt.spans = append(pt.spans, span)
	if span.ParentID == 0 && pt.rootSeq == 0 {
		pt.rootSeq = r.seq
	}
	pt.open--
	if pt.open <= 0 {
		pt.complete = true
		if pt.rootSeq == 0 {
			pt.rootSeq = r.seq
		}
	}

	r.flushLocked()
}

// flushLocked emits completed traces in root-finish order. A completed
// trace waits while any still-open trace has an earlier finished root.
// Caller holds r.mu.
func (r *TraceRecorder) flushLocked() {
	for {
		var (
			bestID uint64
			best   *pendingTrace
		)
		earliestOpenRoot := uint64(0)
		for id, pt := range r.pending {
			if pt.complete {
				if best == nil || pt.rootSeq < best.rootSeq {
					bestID, best = id, pt
				}
			} else if pt.rootSeq != 0 && (earliestOpenRoot == 0 || pt.rootSeq < earliestOpenRoot) {
				earliestOpenRoot = pt.rootSeq
			}
		}
		if best == nil {
			return
		}
		if earliestOpenRoot != 0 && earliestOpenRoot < best.rootSeq {
			// An earlier-rooted trace is still open; keep order.
			return
		}
		delete(r.pending, bestID)
		r.flushed.Add(1)
		r.writer.WriteTrace(best.spans)
	}
}

// PendingTraces returns the number of traces still being assembled.
func (r *TraceRecorder) PendingTraces() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// FlushedTraces returns the total number of traces emitted.
func (r *TraceRecorder) FlushedTraces() uint64 {
	return r.flushed.Load()
}

// LateSpans returns the number of spans reported without a started trace.
func (r *TraceRecorder) LateSpans() uint64 {
	return r.lateSpans.Load()
}
