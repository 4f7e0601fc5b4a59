package tracekit

import "context"

// contextBundle holds both tracer and span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	span   *Span
}

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const bundleKey bundleKeyType = "tracekit"

// ContextWithSpan returns a copy of parent carrying span as the current
// span. Child spans started from the returned context inherit it as their
// parent.
func ContextWithSpan(parent context.Context, span *Span) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	bundle := &contextBundle{tracer: span.tracer, span: span}
	return context.WithValue(parent, bundleKey, bundle)
}

// SpanFromContext extracts the current span from a context, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}
	return nil
}

// ScopeManager tracks the current span for one logical thread of control
// using an explicit activate/close stack discipline.
//
// A ScopeManager is deliberately unlocked: each goroutine (or other unit of
// sequential execution) owns its manager exclusively and must never share
// it. A span created on one goroutine and passed explicitly to another via
// ChildOfSpan establishes parentage but does not become the second
// goroutine's active span unless that goroutine activates it itself.
type ScopeManager struct {
	active *Scope
}

// NewScopeManager creates an empty scope manager for one thread of control.
func NewScopeManager() *ScopeManager {
	return &ScopeManager{}
}

// Active returns the current span, or nil when no scope is open.
func (m *ScopeManager) Active() *Span {
	if m == nil || m.active == nil {
		return nil
	}
	return m.active.span
}

// Activate pushes span as the current span and returns its Scope. When
// finishOnClose is set, closing the scope also finishes the span.
func (m *ScopeManager) Activate(span *Span, finishOnClose bool) *Scope {
	scope := &Scope{
		manager:       m,
		span:          span,
		previous:      m.active,
		finishOnClose: finishOnClose,
	}
	m.active = scope
	return scope
}

// Scope is a handle representing "this span is currently active". Closing
// it restores the scope that was active immediately before it was
// activated, on every exit path.
type Scope struct {
	manager       *ScopeManager
	span          *Span
	previous      *Scope
	finishOnClose bool
	closed        bool
}

// Span returns the span this scope wraps.
func (s *Scope) Span() *Span {
	return s.span
}

// Close deactivates the scope, restoring the scope active immediately
// before this one regardless of how unrelated scopes were closed in
// between, and finishes the span when the scope was activated with
// finishOnClose. Closing twice is a no-op.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.manager.active = s.previous
	if s.finishOnClose {
		s.span.Finish()
	}
}
