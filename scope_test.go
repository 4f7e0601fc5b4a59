package tracekit

import (
	"context"
	"testing"
)

func TestContextWithSpanRoundTrip(t *testing.T) {
	tracer, _ := newTestTracer(t)

	span := tracer.StartSpan("test-operation")
	ctx := ContextWithSpan(context.Background(), span)

	if got := SpanFromContext(ctx); got != span {
		t.Error("Expected span to round-trip through the context")
	}
	if got := SpanFromContext(context.Background()); got != nil {
		t.Error("Expected nil span from an empty context")
	}
	if got := SpanFromContext(nil); got != nil { //nolint:staticcheck // nil context tolerance is part of the contract
		t.Error("Expected nil span from a nil context")
	}
	span.Finish()
}

func TestScopeManagerStackDiscipline(t *testing.T) {
	tracer, _ := newTestTracer(t)
	mgr := NewScopeManager()

	if mgr.Active() != nil {
		t.Error("Expected no active span on a fresh manager")
	}

	// Nest three activations and close them in reverse order.
	spanA := tracer.StartSpan("a")
	spanB := tracer.StartSpan("b")
	spanC := tracer.StartSpan("c")

	scopeA := mgr.Activate(spanA, false)
	scopeB := mgr.Activate(spanB, false)
	scopeC := mgr.Activate(spanC, false)

	if mgr.Active() != spanC {
		t.Error("Expected innermost span to be active")
	}

	scopeC.Close()
	if mgr.Active() != spanB {
		t.Error("Expected spanB active after closing innermost scope")
	}
	scopeB.Close()
	if mgr.Active() != spanA {
		t.Error("Expected spanA active after closing middle scope")
	}
	scopeA.Close()
	if mgr.Active() != nil {
		t.Error("Expected no active span after closing every scope")
	}
}

func TestScopeCloseOutOfOrder(t *testing.T) {
	tracer, _ := newTestTracer(t)
	mgr := NewScopeManager()

	spanA := tracer.StartSpan("a")
	spanB := tracer.StartSpan("b")
	spanC := tracer.StartSpan("c")

	mgr.Activate(spanA, false)
	scopeB := mgr.Activate(spanB, false)
	scopeC := mgr.Activate(spanC, false)

	// Closing B (not the innermost) restores the scope that was active
	// immediately before B was activated: A.
	scopeB.Close()
	if mgr.Active() != spanA {
		t.Error("Expected spanA active after out-of-order close of B")
	}

	// Closing C restores the scope active immediately before C: B.
	scopeC.Close()
	if mgr.Active() != spanB {
		t.Error("Expected spanB restored by closing C")
	}
}

func TestScopeCloseIsIdempotent(t *testing.T) {
	tracer, _ := newTestTracer(t)
	mgr := NewScopeManager()

	spanA := tracer.StartSpan("a")
	spanB := tracer.StartSpan("b")

	scopeA := mgr.Activate(spanA, false)
	scopeB := mgr.Activate(spanB, false)

	scopeB.Close()
	scopeB.Close() // second close must not pop again

	if mgr.Active() != spanA {
		t.Error("Expected spanA active after double close of inner scope")
	}
	scopeA.Close()
}

func TestScopeFinishOnClose(t *testing.T) {
	tracer, _ := newTestTracer(t)
	mgr := NewScopeManager()

	finishing := tracer.StartSpan("finishing")
	kept := tracer.StartSpan("kept")

	mgr.Activate(finishing, true).Close()
	if !finishing.Finished() {
		t.Error("Expected finishOnClose scope to finish its span")
	}

	mgr.Activate(kept, false).Close()
	if kept.Finished() {
		t.Error("Expected span to survive a non-finishing scope close")
	}
	kept.Finish()
}

func TestStartActiveSpan(t *testing.T) {
	tracer, writer := newTestTracer(t)
	mgr := NewScopeManager()

	parent := tracer.StartActiveSpan(mgr, "parent")
	if mgr.Active() != parent.Span() {
		t.Error("Expected started span to become active")
	}

	child := tracer.StartActiveSpan(mgr, "child")
	if child.Span().Context().ParentID() != parent.Span().Context().SpanID() {
		t.Error("Expected child to be parented on the active span")
	}
	if child.Span().Context().TraceID() != parent.Span().Context().TraceID() {
		t.Error("Expected child to share the parent's trace id")
	}

	child.Close()
	if !child.Span().Finished() {
		t.Error("Expected scope close to finish the child")
	}
	if mgr.Active() != parent.Span() {
		t.Error("Expected parent restored as active")
	}
	parent.Close()

	traces := writer.Pop()
	if len(traces) != 1 {
		t.Fatalf("Expected 1 completed trace, got %d", len(traces))
	}
	if len(traces[0]) != 2 {
		t.Errorf("Expected 2 spans in the trace, got %d", len(traces[0]))
	}
}

func TestStartActiveSpanIgnoreActive(t *testing.T) {
	tracer, _ := newTestTracer(t)
	mgr := NewScopeManager()

	parent := tracer.StartActiveSpan(mgr, "parent")
	detached := tracer.StartActiveSpan(mgr, "detached", IgnoreActiveSpan())

	if detached.Span().Context().ParentID() != 0 {
		t.Error("Expected detached span to have no parent")
	}
	if detached.Span().Context().TraceID() == parent.Span().Context().TraceID() {
		t.Error("Expected detached span to start a fresh trace")
	}

	detached.Close()
	parent.Close()
}
