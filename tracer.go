package tracekit

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// spanStartObserver is implemented by recorders that reference count open
// spans per trace. The tracer feeds it on every span start.
type spanStartObserver interface {
	SpanStarted(traceID uint64)
}

// Tracer creates, parents and finishes spans, propagates trace identity
// across process boundaries via format-pluggable codecs, and forwards
// finished spans to its Recorder.
//
// Safe for concurrent use by multiple goroutines.
type Tracer struct {
	service  string
	disabled bool

	recorder  Recorder
	sampler   Sampler
	ownWriter *AgentWriter

	propMu      sync.RWMutex
	propagators map[Format]Propagator

	traceIDPool *IDPool
	spanIDPool  *IDPool
	idPoolOnce  sync.Once
	closeOnce   sync.Once

	clock clockz.Clock
	log   *slog.Logger

	// runtimeID identifies this process instance on local root spans.
	runtimeID string
}

// New creates a tracer from cfg. It fails eagerly with a ConfigError when
// the service name is missing; it never fails lazily.
func New(cfg Config) (*Tracer, error) {
	if cfg.ServiceName == "" {
		return nil, &ConfigError{Reason: "service_name is required"}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockz.RealClock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sampler := cfg.Sampler
	if sampler == nil {
		if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
			sampler = NewRateSampler(cfg.SampleRate)
		} else {
			sampler = AllSampler{}
		}
	}

	recorder := cfg.Recorder
	var ownWriter *AgentWriter
	if recorder == nil {
		writer := cfg.Writer
		if writer == nil {
			ownWriter = NewAgentWriter(AgentWriterConfig{
				URL:           cfg.AgentURL,
				FlushInterval: cfg.FlushInterval,
				Logger:        logger,
			})
			writer = ownWriter
		}
		recorder = NewTraceRecorder(writer, logger)
	}

	return &Tracer{
		service:   cfg.ServiceName,
		disabled:  cfg.Disabled,
		recorder:  recorder,
		sampler:   sampler,
		ownWriter: ownWriter,
		propagators: map[Format]Propagator{
			FormatHTTPHeaders: newHTTPHeadersPropagator(),
			FormatTextMap:     newTextMapPropagator(),
		},
		clock:     clock,
		log:       logger,
		runtimeID: uuid.NewString(),
	}, nil
}

// StartSpanConfig holds the resolved options for StartSpan.
type StartSpanConfig struct {
	// Parent is the explicit parent context; HasParent reports whether one
	// was supplied.
	Parent    SpanContext
	HasParent bool

	// StartTime overrides the capture-at-call start instant.
	StartTime time.Time

	// Tags are set on the span at creation.
	Tags map[string]string

	// IgnoreActive suppresses default-parenting from the ambient span.
	IgnoreActive bool
}

// StartSpanOption configures StartSpan.
type StartSpanOption func(cfg *StartSpanConfig)

// ChildOf makes the new span a child of the given context.
func ChildOf(sc SpanContext) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.Parent = sc
		cfg.HasParent = true
	}
}

// ChildOfSpan makes the new span a child of the given span. A nil span is
// ignored.
func ChildOfSpan(s *Span) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		if s == nil {
			return
		}
		cfg.Parent = s.Context()
		cfg.HasParent = true
	}
}

// WithStartTime overrides the span's start instant. Duration is always
// finish minus this time.
func WithStartTime(ts time.Time) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.StartTime = ts
	}
}

// WithTags sets initial tags on the span.
func WithTags(tags map[string]string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			cfg.Tags[k] = v
		}
	}
}

// WithTag sets one initial tag on the span.
func WithTag(key, value string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = make(map[string]string, 1)
		}
		cfg.Tags[key] = value
	}
}

// IgnoreActiveSpan makes the new span a trace root even when an ambient
// span is present in the context or scope manager.
func IgnoreActiveSpan() StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.IgnoreActive = true
	}
}

// StartSpan creates a span. Without a ChildOf option the span becomes a
// trace root with a fresh trace id and a sampling decision from the
// tracer's Sampler.
func (t *Tracer) StartSpan(operation string, opts ...StartSpanOption) *Span {
	var cfg StartSpanConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return t.newSpan(operation, nil, cfg)
}

// StartSpanFromContext creates a span defaulting its parent to the span
// carried by ctx, and returns a derived context carrying the new span.
// An explicit ChildOf wins over the ambient span; IgnoreActiveSpan
// suppresses the ambient span entirely.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operation string, opts ...StartSpanOption) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	var cfg StartSpanConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var ambient *Span
	if !cfg.HasParent && !cfg.IgnoreActive {
		ambient = SpanFromContext(ctx)
	}
	span := t.newSpan(operation, ambient, cfg)
	return ContextWithSpan(ctx, span), span
}

// StartActiveSpan creates a span defaulting its parent to mgr's active
// span, activates it on mgr and returns the scope. Closing the scope
// restores the previously active span and finishes this one.
func (t *Tracer) StartActiveSpan(mgr *ScopeManager, operation string, opts ...StartSpanOption) *Scope {
	var cfg StartSpanConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var ambient *Span
	if !cfg.HasParent && !cfg.IgnoreActive {
		ambient = mgr.Active()
	}
	span := t.newSpan(operation, ambient, cfg)
	return mgr.Activate(span, true)
}

// newSpan resolves the parent and allocates the span and its context.
func (t *Tracer) newSpan(operation string, ambient *Span, cfg StartSpanConfig) *Span {
	parent := cfg.Parent
	hasParent := cfg.HasParent
	if !hasParent && ambient != nil {
		parent = ambient.Context()
		hasParent = true
	}

	start := cfg.StartTime
	if start.IsZero() {
		start = t.clock.Now()
	}

	var sc SpanContext
	localRoot := false
	if hasParent && parent.HasTrace() {
		sc.traceID = parent.TraceID()
		sc.spanID = t.generateSpanID()
		sc.parentID = parent.SpanID()
		sc.priority, sc.hasPriority = parent.SamplingPriority()
		sc.baggage = parent.baggageCopy()
	} else {
		localRoot = true
		sc.traceID = t.generateTraceID()
		sc.spanID = t.generateSpanID()
		sc.priority = t.sampler.Sample(sc.traceID)
		sc.hasPriority = true
		if hasParent {
			// Baggage-only context, e.g. extracted from a carrier with no
			// trace identity: start a new trace but keep the baggage.
			sc.baggage = parent.baggageCopy()
		}
	}

	span := &Span{
		tracer:        t,
		context:       sc,
		operationName: operation,
		service:       t.service,
		startTime:     start,
	}
	if len(cfg.Tags) > 0 || localRoot {
		span.tags = make(map[string]string, len(cfg.Tags)+1)
		for k, v := range cfg.Tags {
			span.tags[k] = v
		}
		if localRoot {
			span.tags["runtime-id"] = t.runtimeID
		}
	}

	if !t.disabled {
		if observer, ok := t.recorder.(spanStartObserver); ok {
			observer.SpanStarted(sc.traceID)
		}
	}
	return span
}

// reportSpan forwards a finished span snapshot to the recorder.
func (t *Tracer) reportSpan(data SpanData) {
	if t.disabled {
		return
	}
	t.recorder.Record(data)
}

// RegisterPropagator registers (or replaces) the codec for a format.
func (t *Tracer) RegisterPropagator(format Format, p Propagator) {
	t.propMu.Lock()
	defer t.propMu.Unlock()
	t.propagators[format] = p
}

func (t *Tracer) propagator(format Format) Propagator {
	t.propMu.RLock()
	defer t.propMu.RUnlock()
	return t.propagators[format]
}

// Inject encodes sc into carrier using the propagator registered for
// format. It fails with an UnsupportedFormatError for an unknown format
// and an InvalidCarrierError for a carrier that is not a mutable
// string-keyed mapping, in both cases before touching the carrier.
func (t *Tracer) Inject(sc SpanContext, format Format, carrier interface{}) error {
	p := t.propagator(format)
	if p == nil {
		return &UnsupportedFormatError{Format: format}
	}
	writer, ok := carrierWriter(carrier)
	if !ok {
		return &InvalidCarrierError{Op: "inject", Carrier: carrier}
	}
	return p.Inject(sc, writer)
}

// Extract decodes a SpanContext from carrier using the propagator
// registered for format. Malformed or partial content degrades to a
// context with whatever valid fields were found; only format and carrier
// misuse are errors.
func (t *Tracer) Extract(format Format, carrier interface{}) (SpanContext, error) {
	p := t.propagator(format)
	if p == nil {
		return SpanContext{}, &UnsupportedFormatError{Format: format}
	}
	reader, ok := carrierReader(carrier)
	if !ok {
		return SpanContext{}, &InvalidCarrierError{Op: "extract", Carrier: carrier}
	}
	return p.Extract(reader)
}

// carrierWriter coerces supported carrier kinds to the write interface.
func carrierWriter(carrier interface{}) (TextMapWriter, bool) {
	switch c := carrier.(type) {
	case TextMapWriter:
		return c, true
	case map[string]string:
		return TextMapCarrier(c), true
	case http.Header:
		return HTTPHeadersCarrier(c), true
	default:
		return nil, false
	}
}

// carrierReader coerces supported carrier kinds to the read interface.
func carrierReader(carrier interface{}) (TextMapReader, bool) {
	switch c := carrier.(type) {
	case TextMapReader:
		return c, true
	case map[string]string:
		return TextMapCarrier(c), true
	case http.Header:
		return HTTPHeadersCarrier(c), true
	default:
		return nil, false
	}
}

// Close shuts down the tracer's id pools and, when the tracer owns the
// default agent writer, drains and stops it. Safe to call twice.
func (t *Tracer) Close() {
	t.closeOnce.Do(func() {
		if t.traceIDPool != nil {
			t.traceIDPool.Close()
		}
		if t.spanIDPool != nil {
			t.spanIDPool.Close()
		}
		if t.ownWriter != nil {
			t.ownWriter.Stop()
		}
	})
}

// ensureIDPools initializes id pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for contention balance.
		poolSize := runtime.NumCPU() * 100
		t.traceIDPool = NewIDPool(poolSize)
		t.spanIDPool = NewIDPool(poolSize)
	})
}

// generateTraceID allocates a fresh random trace id.
func (t *Tracer) generateTraceID() uint64 {
	t.ensureIDPools()
	return t.traceIDPool.Get()
}

// generateSpanID allocates a fresh random span id.
func (t *Tracer) generateSpanID() uint64 {
	t.ensureIDPools()
	return t.spanIDPool.Get()
}
