package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracer_DisabledWithoutEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "aceversion-test"})
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown error = %v", err)
		}
	}()

	ctx, span := tracer.Start(context.Background(), "draw")
	if ctx == nil {
		t.Fatal("Start returned nil context")
	}
	span.End()
}

func TestTracer_NilSafe(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.Start(context.Background(), "draw")
	if ctx == nil {
		t.Fatal("Start on nil tracer returned nil context")
	}
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()
}
