// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoOpTracer(t *testing.T) {
	tracer := NewNoOpTracer()

	t.Run("StartSpan creates minimal span", func(t *testing.T) {
		ctx := context.Background()
		ctx, span := tracer.StartSpan(ctx, "test_span",
			WithAttribute("key", "value"),
			WithSpanKind("test"),
		)

		if span == nil {
			t.Fatal("Expected span to be created")
		}
		if span.Name != "test_span" {
			t.Errorf("Expected name 'test_span', got %q", span.Name)
		}
		if span.TraceID == "" {
			t.Error("Expected TraceID to be set")
		}
		if span.SpanID == "" {
			t.Error("Expected SpanID to be set")
		}
		if span.Attributes["key"] != "value" {
			t.Errorf("Expected attribute key=value, got %v", span.Attributes["key"])
		}
		if span.Attributes["span.kind"] != "test" {
			t.Errorf("Expected span.kind=test, got %v", span.Attributes["span.kind"])
		}

		// Verify span is in context
		retrieved := SpanFromContext(ctx)
		if retrieved != span {
			t.Error("Span not properly stored in context")
		}
	})

	t.Run("Nested spans have correct parent relationship", func(t *testing.T) {
		ctx := context.Background()

		// Create parent span
		ctx, parent := tracer.StartSpan(ctx, "parent")

		// Create child span
		_, child := tracer.StartSpan(ctx, "child")

		if child.TraceID != parent.TraceID {
			t.Errorf("Child TraceID %s doesn't match parent %s", child.TraceID, parent.TraceID)
		}
		if child.ParentID != parent.SpanID {
			t.Errorf("Child ParentID %s doesn't match parent SpanID %s", child.ParentID, parent.SpanID)
		}
	})

	t.Run("EndSpan calculates duration", func(t *testing.T) {
		ctx := context.Background()
		_, span := tracer.StartSpan(ctx, "timed_span")

		// Simulate work
		time.Sleep(10 * time.Millisecond)

		tracer.EndSpan(span)

		if span.EndTime.IsZero() {
			t.Error("EndTime not set")
		}
		if span.Duration == 0 {
			t.Error("Duration not calculated")
		}
		if span.Duration < 10*time.Millisecond {
			t.Errorf("Duration %v less than expected 10ms", span.Duration)
		}
	})

	t.Run("EndSpan tolerates nil span", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("EndSpan panicked on nil span: %v", r)
			}
		}()
		tracer.EndSpan(nil)
	})

	t.Run("RecordMetric doesn't panic", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("RecordMetric panicked: %v", r)
			}
		}()
		tracer.RecordMetric("test.metric", 42.0, map[string]string{"label": "value"})
	})

	t.Run("Flush doesn't error", func(t *testing.T) {
		if err := tracer.Flush(context.Background()); err != nil {
			t.Errorf("Flush returned error: %v", err)
		}
	})
}

func TestSpanFromContext(t *testing.T) {
	if span := SpanFromContext(context.Background()); span != nil {
		t.Errorf("Expected nil span from empty context, got %v", span)
	}

	span := &Span{SpanID: "abc"}
	ctx := ContextWithSpan(context.Background(), span)
	if got := SpanFromContext(ctx); got != span {
		t.Errorf("Expected span %v from context, got %v", span, got)
	}
}

func TestSpanRecordError(t *testing.T) {
	span := &Span{}

	span.RecordError(nil)
	if span.Status.Code != StatusUnset {
		t.Errorf("RecordError(nil) should leave status unset, got %v", span.Status.Code)
	}

	span.RecordError(errors.New("boom"))
	if span.Status.Code != StatusError {
		t.Errorf("Expected StatusError, got %v", span.Status.Code)
	}
	if span.Status.Message != "boom" {
		t.Errorf("Expected status message 'boom', got %q", span.Status.Message)
	}
	if span.Attributes[AttrErrorMessage] != "boom" {
		t.Errorf("Expected %s attribute, got %v", AttrErrorMessage, span.Attributes[AttrErrorMessage])
	}
}

func TestMockTracerCapturesSpansAndMetrics(t *testing.T) {
	tracer := NewMockTracer()

	ctx, span := tracer.StartSpan(context.Background(), "agent.step",
		WithAttribute(AttrPhase, "act"))
	_, child := tracer.StartSpan(ctx, "tool.execute")
	tracer.EndSpan(child)
	tracer.EndSpan(span)

	tracer.RecordMetric("agent.steps", 3, map[string]string{"end_status": "solved"})

	spans := tracer.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if got := tracer.GetSpanByName("agent.step"); got == nil {
		t.Fatal("Expected to find span by name")
	} else if got.Attributes[AttrPhase] != "act" {
		t.Errorf("Expected phase attribute 'act', got %v", got.Attributes[AttrPhase])
	}

	metrics := tracer.GetMetrics()
	if len(metrics) != 1 {
		t.Fatalf("Expected 1 metric, got %d", len(metrics))
	}
	if metrics[0].Name != "agent.steps" || metrics[0].Value != 3 {
		t.Errorf("Unexpected metric %+v", metrics[0])
	}

	tracer.Reset()
	if len(tracer.GetSpans()) != 0 || len(tracer.GetMetrics()) != 0 {
		t.Error("Reset should clear captured spans and metrics")
	}
}
