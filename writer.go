package tracekit

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/bytedance/sonic"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultAgentURL      = "http://localhost:7756/v0.1/traces"
	defaultFlushInterval = 2 * time.Second
	defaultQueueSize     = 1000
	defaultBatchSize     = 100

	// traceCountHeader tells the collector how many traces one payload
	// holds without decoding it.
	traceCountHeader = "X-Tracekit-Trace-Count"
)

// BufferWriter accumulates completed traces in memory. It is the writer
// used in tests and by callers that export traces themselves.
type BufferWriter struct {
	mu     sync.Mutex
	traces [][]SpanData
}

// NewBufferWriter creates an empty buffer writer.
func NewBufferWriter() *BufferWriter {
	return &BufferWriter{}
}

// WriteTrace appends one completed trace. Never blocks.
func (w *BufferWriter) WriteTrace(trace []SpanData) {
	buffered := append([]SpanData(nil), trace...)
	w.mu.Lock()
	w.traces = append(w.traces, buffered)
	w.mu.Unlock()
}

// Pop returns all buffered traces in arrival order and clears the buffer.
func (w *BufferWriter) Pop() [][]SpanData {
	w.mu.Lock()
	defer w.mu.Unlock()
	traces := w.traces
	w.traces = nil
	return traces
}

// PopSpans returns every buffered span, trace by trace, and clears the
// buffer.
func (w *BufferWriter) PopSpans() []SpanData {
	var spans []SpanData
	for _, trace := range w.Pop() {
		spans = append(spans, trace...)
	}
	return spans
}

// Len returns the number of buffered traces.
func (w *BufferWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.traces)
}

// AgentWriterConfig configures an AgentWriter. Zero values take defaults.
type AgentWriterConfig struct {
	// URL is the collector endpoint receiving JSON trace payloads.
	URL string

	// FlushInterval caps how long a batch may sit before upload.
	FlushInterval time.Duration

	// QueueSize bounds the completed-trace queue; overflow is dropped.
	QueueSize int

	// BatchSize triggers an upload once this many traces are batched.
	BatchSize int

	// HTTPClient overrides the default client (5s timeout).
	HTTPClient *http.Client

	// Logger receives transport defect reports; nil discards them.
	Logger *slog.Logger
}

// AgentWriter batches completed traces and ships them to a collector over
// HTTP. Uploads are retried on transient failure and shed through a
// circuit breaker while the collector is down, so a dead agent never
// backs up into the application.
//
// Safe for concurrent use by multiple goroutines.
type AgentWriter struct {
	traces chan []SpanData
	stopCh chan struct{}
	done   chan struct{}

	client        *http.Client
	url           string
	flushInterval time.Duration
	batchSize     int

	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *slog.Logger

	stopOnce sync.Once
	dropped  atomic.Uint64
	sent     atomic.Uint64
}

// NewAgentWriter creates a writer and starts its flush loop.
func NewAgentWriter(cfg AgentWriterConfig) *AgentWriter {
	if cfg.URL == "" {
		cfg.URL = defaultAgentURL
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	w := &AgentWriter{
		traces:        make(chan []SpanData, cfg.QueueSize),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		client:        cfg.HTTPClient,
		url:           cfg.URL,
		flushInterval: cfg.FlushInterval,
		batchSize:     cfg.BatchSize,
		log:           cfg.Logger,
	}
	w.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "tracekit-agent",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	go w.loop()
	return w
}

// WriteTrace enqueues one completed trace for upload. When the queue is
// full the trace is dropped and counted rather than blocking the recorder.
func (w *AgentWriter) WriteTrace(trace []SpanData) {
	select {
	case w.traces <- trace:
	default:
		w.dropped.Add(1)
	}
}

// DroppedTraces returns the number of traces dropped due to backpressure.
func (w *AgentWriter) DroppedTraces() uint64 {
	return w.dropped.Load()
}

// SentTraces returns the number of traces successfully uploaded.
func (w *AgentWriter) SentTraces() uint64 {
	return w.sent.Load()
}

// Stop drains queued traces, uploads the final batch and shuts the flush
// loop down. Safe to call twice.
func (w *AgentWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
}

// loop batches incoming traces and flushes on size or interval.
func (w *AgentWriter) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	var batch [][]SpanData
	for {
		select {
		case <-w.stopCh:
			// Drain remaining traces before shutdown.
			for {
				select {
				case trace := <-w.traces:
					batch = append(batch, trace)
				default:
					w.flush(batch)
					return
				}
			}
		case trace := <-w.traces:
			batch = append(batch, trace)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = nil
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = nil
			}
		}
	}
}

// flush uploads one batch through the circuit breaker.
func (w *AgentWriter) flush(batch [][]SpanData) {
	if len(batch) == 0 {
		return
	}
	payload, err := sonic.Marshal(batch)
	if err != nil {
		w.log.Error("trace payload encoding failed", "error", err)
		w.dropped.Add(uint64(len(batch)))
		return
	}
	if _, err := w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.upload(payload, len(batch))
	}); err != nil {
		w.log.Warn("trace upload failed", "traces", len(batch), "error", err)
		w.dropped.Add(uint64(len(batch)))
		return
	}
	w.sent.Add(uint64(len(batch)))
}

// upload posts one payload, retrying transient failures.
func (w *AgentWriter) upload(payload []byte, traceCount int) error {
	return retry.New(
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.LastErrorOnly(true),
	).Do(func() error {
		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(traceCountHeader, strconv.Itoa(traceCount))

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("agent returned status %d", resp.StatusCode)
		}
		return nil
	})
}
