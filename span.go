package tracekit

import (
	"sync"
	"time"
)

// Span is a mutable record of one unit of work. All mutators are safe for
// concurrent use; a finished span silently rejects further mutation.
type Span struct {
	mu sync.Mutex

	tracer *Tracer

	context       SpanContext
	operationName string
	service       string

	startTime time.Time
	duration  time.Duration
	finished  bool
	tags      map[string]string
	logs      []LogRecord
}

// LogRecord is one timestamped set of log fields attached to a span.
type LogRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
}

// SpanData is the immutable snapshot of a finished (or in-flight) span
// handed to the Recorder and serialized by trace writers.
type SpanData struct {
	Tags      map[string]string `json:"tags,omitempty"`
	Logs      []LogRecord       `json:"logs,omitempty"`
	StartTime time.Time         `json:"start_time"`
	Duration  time.Duration     `json:"duration"`
	TraceID   uint64            `json:"trace_id"`
	SpanID    uint64            `json:"span_id"`
	ParentID  uint64            `json:"parent_id,omitempty"`
	Name      string            `json:"name"`
	Service   string            `json:"service,omitempty"`

	// Priority is the trace's sampling decision. HasPriority is false when
	// the trace never received one (e.g. extracted from a bare carrier).
	Priority    SamplingPriority `json:"priority"`
	HasPriority bool             `json:"has_priority"`

	// Baggage travels with the context rather than the span, but is
	// snapshotted here so downstream consumers see what propagated.
	Baggage map[string]string `json:"baggage,omitempty"`
}

// FinishOptions configures FinishWithOptions.
type FinishOptions struct {
	// FinishTime overrides the finish instant. Zero means "now".
	FinishTime time.Time
}

// Context returns the span's SpanContext. The returned value is a snapshot;
// later SetBaggageItem calls are not visible through it.
func (s *Span) Context() SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// OperationName returns the span's operation name.
func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operationName
}

// SetOperationName renames the span's operation. No-op once finished.
func (s *Span) SetOperationName(name string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s
	}
	s.operationName = name
	return s
}

// SetTag sets a tag on the span, last write wins. No-op once finished.
func (s *Span) SetTag(key, value string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s
	}
	if s.tags == nil {
		s.tags = make(map[string]string)
	}
	s.tags[key] = value
	return s
}

// Tag returns the tag value for key and whether it is set.
func (s *Span) Tag(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.tags[key]
	return value, ok
}

// LogKV attaches one timestamped log record built from alternating
// key/value pairs. An unpaired trailing key is dropped and reported to the
// tracer's logger. No-op once finished.
func (s *Span) LogKV(keyValues ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if len(keyValues)%2 != 0 {
		s.tracer.log.Debug("span log called with unpaired key",
			"operation", s.operationName, "key", keyValues[len(keyValues)-1])
	}
	if len(keyValues) < 2 {
		return
	}
	fields := make(map[string]string, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		fields[keyValues[i]] = keyValues[i+1]
	}
	s.logs = append(s.logs, LogRecord{Timestamp: s.tracer.clock.Now(), Fields: fields})
}

// SetBaggageItem attaches a baggage pair that will propagate to all
// descendant spans and across process boundaries. The span's context is
// replaced with a new value; snapshots taken earlier are unaffected.
// No-op once finished.
func (s *Span) SetBaggageItem(key, value string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s
	}
	s.context = s.context.WithBaggageItem(key, value)
	return s
}

// BaggageItem returns the baggage value for key, or "" if unset.
func (s *Span) BaggageItem(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.BaggageItem(key)
}

// StartTime returns the span's effective start instant.
func (s *Span) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Duration returns the span's duration; zero until finished.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Finished reports whether Finish has been called.
func (s *Span) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Finish completes the span and reports it to the tracer's recorder.
// Finishing twice is a no-op: the first call wins and nothing is reported
// again.
func (s *Span) Finish() {
	s.FinishWithOptions(FinishOptions{})
}

// FinishWithOptions completes the span at the given finish time (or now).
// Duration is always finish minus the effective start time, so a span
// started with a custom early start time reports a longer duration than
// the work actually took.
func (s *Span) FinishWithOptions(opts FinishOptions) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	finishTime := opts.FinishTime
	if finishTime.IsZero() {
		finishTime = s.tracer.clock.Now()
	}
	s.finished = true
	s.duration = finishTime.Sub(s.startTime)
	data := s.snapshotLocked()
	s.mu.Unlock()

	// Report outside the span lock; the recorder only enqueues.
	s.tracer.reportSpan(data)
}

// snapshotLocked builds a detached SpanData. Caller holds s.mu.
func (s *Span) snapshotLocked() SpanData {
	data := SpanData{
		StartTime: s.startTime,
		Duration:  s.duration,
		TraceID:   s.context.traceID,
		SpanID:    s.context.spanID,
		ParentID:  s.context.parentID,
		Name:      s.operationName,
		Service:   s.service,
		Baggage:   s.context.baggageCopy(),
	}
	data.Priority, data.HasPriority = s.context.SamplingPriority()
	if len(s.tags) > 0 {
		data.Tags = make(map[string]string, len(s.tags))
		for k, v := range s.tags {
			data.Tags[k] = v
		}
	}
	if len(s.logs) > 0 {
		data.Logs = append([]LogRecord(nil), s.logs...)
	}
	return data
}
