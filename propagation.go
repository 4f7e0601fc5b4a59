package tracekit

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Carrier keys for the http-headers format. Header matching is
// case-insensitive; baggage keys and values are percent-encoded.
const (
	headerTraceID       = "x-tracekit-trace-id"
	headerSpanID        = "x-tracekit-span-id"
	headerPriority      = "x-tracekit-sampling-priority"
	headerBaggagePrefix = "x-tracekit-baggage-"
)

// Carrier keys for the text-map format: the same logical fields under
// plain, unprefixed keys. Matching is case-sensitive and baggage keys and
// values travel verbatim, so arbitrary strings round-trip exactly.
const (
	textMapTraceID       = "trace-id"
	textMapSpanID        = "span-id"
	textMapPriority      = "sampling-priority"
	textMapBaggagePrefix = "baggage-"
)

// TextMapWriter is the write half of a carrier: a mutable string-keyed
// mapping.
type TextMapWriter interface {
	Set(key, value string)
}

// TextMapReader is the read half of a carrier. ForeachKey must visit every
// key/value pair; returning an error from the handler aborts iteration.
type TextMapReader interface {
	ForeachKey(handler func(key, value string) error) error
}

// TextMapCarrier is a plain map carrier satisfying both halves.
type TextMapCarrier map[string]string

// Set stores the pair in the map.
func (c TextMapCarrier) Set(key, value string) {
	c[key] = value
}

// ForeachKey visits every pair in the map.
func (c TextMapCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeadersCarrier adapts an http.Header into a carrier.
type HTTPHeadersCarrier http.Header

// Set stores the pair using canonical header semantics.
func (c HTTPHeadersCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// ForeachKey visits the first value of every header.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, vals := range c {
		if len(vals) == 0 {
			continue
		}
		if err := handler(k, vals[0]); err != nil {
			return err
		}
	}
	return nil
}

// Propagator is a pure codec mapping a SpanContext to and from a carrier
// for one named format. Implementations must not fail extraction on
// malformed content; they degrade to whatever valid fields were found.
type Propagator interface {
	Inject(sc SpanContext, writer TextMapWriter) error
	Extract(reader TextMapReader) (SpanContext, error)
}

// codec implements both built-in formats; they differ in key namespace,
// key case handling and baggage encoding.
type codec struct {
	traceIDKey    string
	spanIDKey     string
	priorityKey   string
	baggagePrefix string

	// foldKeys matches carrier keys case-insensitively on extract. Header
	// carriers canonicalize key case in transit; plain maps do not, so the
	// text-map codec matches exactly and keys round-trip verbatim.
	foldKeys bool

	// escapeBaggage percent-encodes baggage keys and values on inject and
	// decodes them on extract. The text-map codec leaves both verbatim:
	// decoding there would corrupt literal values containing percent signs.
	escapeBaggage bool
}

func newHTTPHeadersPropagator() *codec {
	return &codec{
		traceIDKey:    headerTraceID,
		spanIDKey:     headerSpanID,
		priorityKey:   headerPriority,
		baggagePrefix: headerBaggagePrefix,
		foldKeys:      true,
		escapeBaggage: true,
	}
}

func newTextMapPropagator() *codec {
	return &codec{
		traceIDKey:    textMapTraceID,
		spanIDKey:     textMapSpanID,
		priorityKey:   textMapPriority,
		baggagePrefix: textMapBaggagePrefix,
	}
}

// Inject writes the context's fields into the carrier.
func (p *codec) Inject(sc SpanContext, writer TextMapWriter) error {
	if sc.HasTrace() {
		writer.Set(p.traceIDKey, strconv.FormatUint(sc.TraceID(), 10))
		writer.Set(p.spanIDKey, strconv.FormatUint(sc.SpanID(), 10))
	}
	if priority, ok := sc.SamplingPriority(); ok {
		writer.Set(p.priorityKey, strconv.Itoa(int(priority)))
	}
	sc.ForeachBaggageItem(func(k, v string) bool {
		if p.escapeBaggage {
			writer.Set(p.baggagePrefix+url.PathEscape(k), url.PathEscape(v))
		} else {
			writer.Set(p.baggagePrefix+k, v)
		}
		return true
	})
	return nil
}

// Extract decodes the carrier into a new SpanContext. Unknown keys are
// skipped, unparsable ids leave the context without trace identity, and
// baggage entries that do not match the expected prefix or encoding are
// dropped rather than merged incorrectly.
func (p *codec) Extract(reader TextMapReader) (SpanContext, error) {
	var sc SpanContext
	err := reader.ForeachKey(func(key, value string) error {
		k := key
		if p.foldKeys {
			k = strings.ToLower(key)
		}
		switch {
		case k == p.traceIDKey:
			if id, err := strconv.ParseUint(value, 10, 64); err == nil {
				sc.traceID = id
			}
		case k == p.spanIDKey:
			if id, err := strconv.ParseUint(value, 10, 64); err == nil {
				sc.spanID = id
			}
		case k == p.priorityKey:
			if priority, err := strconv.Atoi(value); err == nil {
				sc.priority = SamplingPriority(priority)
				sc.hasPriority = true
			}
		case strings.HasPrefix(k, p.baggagePrefix):
			bk := strings.TrimPrefix(k, p.baggagePrefix)
			bv := value
			if p.escapeBaggage {
				var ok bool
				bk, ok = decodeBaggageKey(bk)
				if !ok {
					return nil
				}
				if unescaped, err := url.PathUnescape(value); err == nil {
					bv = unescaped
				}
			} else if bk == "" {
				return nil
			}
			sc = sc.WithBaggageItem(bk, bv)
		}
		return nil
	})
	if err != nil {
		return SpanContext{}, err
	}
	// A context without both ids carries no trace identity; drop the
	// surviving half so callers never see a partial pair.
	if !sc.HasTrace() {
		sc.traceID = 0
		sc.spanID = 0
	}
	return sc, nil
}

// decodeBaggageKey unescapes a baggage key suffix, rejecting entries whose
// shape is invalid.
func decodeBaggageKey(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	unescaped, err := url.PathUnescape(key)
	if err != nil {
		return "", false
	}
	return unescaped, true
}
