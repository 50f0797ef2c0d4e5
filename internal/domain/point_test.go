package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewPointRejectsEmptyMeasurement(t *testing.T) {
	_, err := NewPoint("", nil, map[string]any{"v": 1.0}, time.Now())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestNewPointRejectsMissingFields(t *testing.T) {
	_, err := NewPoint("flow", map[string]string{"site": "a"}, nil, time.Now())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestNewPointRejectsUnsupportedFieldType(t *testing.T) {
	_, err := NewPoint("flow", nil, map[string]any{"v": []int{1}}, time.Now())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestNewPointCopiesMaps(t *testing.T) {
	tags := map[string]string{"site": "a"}
	fields := map[string]any{"v": 1.5}

	p, err := NewPoint("flow", tags, fields, time.Now())
	if err != nil {
		t.Fatalf("new point: %v", err)
	}

	tags["site"] = "mutated"
	fields["v"] = 99.0

	if p.Tags["site"] != "a" {
		t.Fatalf("tag mutation leaked into point: %q", p.Tags["site"])
	}
	if p.Fields["v"] != 1.5 {
		t.Fatalf("field mutation leaked into point: %v", p.Fields["v"])
	}
}

func TestNewPointNormalizesInt(t *testing.T) {
	p, err := NewPoint("flow", nil, map[string]any{"n": 7}, time.Now())
	if err != nil {
		t.Fatalf("new point: %v", err)
	}
	if v, ok := p.Fields["n"].(int64); !ok || v != 7 {
		t.Fatalf("expected int64(7), got %T %v", p.Fields["n"], p.Fields["n"])
	}
}

func TestEncodeLineSortsTagsAndFields(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	p := Point{
		Measurement: "forecast",
		Tags:        map[string]string{"zone": "n", "id": "3"},
		Fields:      map[string]any{"sum": 12.5, "count": int64(4)},
		Timestamp:   ts,
	}

	want := `forecast,id=3,zone=n count=4i,sum=12.5 1700000000000000000`
	if got := p.EncodeLine(); got != want {
		t.Fatalf("encoded line mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestEncodeLineEscaping(t *testing.T) {
	ts := time.Unix(0, 42)
	p := Point{
		Measurement: "my measurement",
		Tags:        map[string]string{"name": "a b,c=d"},
		Fields:      map[string]any{"msg": `say "hi"`, "ok": true},
		Timestamp:   ts,
	}

	want := `my\ measurement,name=a\ b\,c\=d msg="say \"hi\"",ok=true 42`
	if got := p.EncodeLine(); got != want {
		t.Fatalf("encoded line mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestEncodeLines(t *testing.T) {
	ts := time.Unix(0, 1)
	points := []Point{
		{Measurement: "a", Fields: map[string]any{"v": 1.0}, Timestamp: ts},
		{Measurement: "b", Fields: map[string]any{"v": 2.0}, Timestamp: ts},
	}
	want := "a v=1 1\nb v=2 1"
	if got := EncodeLines(points); got != want {
		t.Fatalf("encoded lines mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestSeriesKeyStable(t *testing.T) {
	a := Point{Measurement: "flow", Tags: map[string]string{"b": "2", "a": "1"}}
	b := Point{Measurement: "flow", Tags: map[string]string{"a": "1", "b": "2"}}
	if a.SeriesKey() != b.SeriesKey() {
		t.Fatalf("series keys differ for identical tag sets: %q vs %q", a.SeriesKey(), b.SeriesKey())
	}
	if a.SeriesKey() != "flow,a=1,b=2" {
		t.Fatalf("unexpected series key %q", a.SeriesKey())
	}
}

func TestWithTagDoesNotMutateOriginal(t *testing.T) {
	p := Point{Measurement: "flow", Tags: map[string]string{"a": "1"}, Fields: map[string]any{"v": 1.0}}
	q := p.WithTag("partial", "true")

	if _, ok := p.Tags["partial"]; ok {
		t.Fatalf("WithTag mutated the original point")
	}
	if q.Tags["partial"] != "true" || q.Tags["a"] != "1" {
		t.Fatalf("unexpected tags on copy: %v", q.Tags)
	}
}

func TestIsTransient(t *testing.T) {
	base := errors.New("connection refused")
	if IsTransient(base) {
		t.Fatalf("plain error must not be transient")
	}
	if !IsTransient(&SinkTransientError{Err: base}) {
		t.Fatalf("wrapped error must be transient")
	}
	exhausted := &SinkExhaustedError{Attempts: 3, Last: &SinkTransientError{Err: base}}
	if !IsTransient(exhausted) {
		t.Fatalf("exhausted error should unwrap to its transient cause")
	}
}
