package spool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
)

func spoolPoints(n int) []domain.Point {
	points := make([]domain.Point, n)
	for i := range points {
		points[i] = domain.Point{
			Measurement: "forecast",
			Tags:        map[string]string{"id": "1"},
			Fields: map[string]any{
				"value": float64(i),
				"count": int64(i),
				"raw":   "payload",
				"ok":    true,
			},
			Timestamp: time.Unix(int64(1700000000+i), 0).UTC(),
		}
	}
	return points
}

func TestFileSpoolAppendReplayReset(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}

	if err := s.Append(spoolPoints(2)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(spoolPoints(1)); err != nil {
		t.Fatalf("append: %v", err)
	}

	stats := s.Stats()
	if stats.Batches != 2 || stats.SizeBytes == 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	var replayed [][]domain.Point
	if err := s.Replay(func(points []domain.Point) error {
		replayed = append(replayed, points)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(replayed) != 2 || len(replayed[0]) != 2 || len(replayed[1]) != 1 {
		t.Fatalf("unexpected replay shape: %d batches", len(replayed))
	}

	p := replayed[0][1]
	if p.Measurement != "forecast" || p.Tags["id"] != "1" {
		t.Fatalf("point identity lost: %+v", p)
	}
	if !p.Timestamp.Equal(time.Unix(1700000001, 0)) {
		t.Fatalf("timestamp lost: %v", p.Timestamp)
	}

	// full replay resets the spool
	if stats := s.Stats(); stats.Batches != 0 || stats.SizeBytes != 0 {
		t.Fatalf("spool not reset after replay: %+v", stats)
	}
}

func TestFileSpoolPreservesFieldTypes(t *testing.T) {
	s, err := NewFileSpool(t.TempDir())
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	if err := s.Append(spoolPoints(1)); err != nil {
		t.Fatalf("append: %v", err)
	}

	var got domain.Point
	if err := s.Replay(func(points []domain.Point) error {
		got = points[0]
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if _, ok := got.Fields["value"].(float64); !ok {
		t.Fatalf("float field lost its type: %T", got.Fields["value"])
	}
	if _, ok := got.Fields["count"].(int64); !ok {
		t.Fatalf("integer field lost its type: %T", got.Fields["count"])
	}
	if got.Fields["raw"] != "payload" || got.Fields["ok"] != true {
		t.Fatalf("string or bool field lost: %+v", got.Fields)
	}
}

func TestFileSpoolFailedReplayKeepsRecords(t *testing.T) {
	s, err := NewFileSpool(t.TempDir())
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	if err := s.Append(spoolPoints(1)); err != nil {
		t.Fatalf("append: %v", err)
	}

	wantErr := errors.New("queue full")
	if err := s.Replay(func([]domain.Point) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected replay to surface the callback error, got %v", err)
	}

	if stats := s.Stats(); stats.Batches != 1 {
		t.Fatalf("failed replay must keep the spool intact, got %+v", stats)
	}
}

func TestFileSpoolSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	if err := s.Append(spoolPoints(3)); err != nil {
		t.Fatalf("append: %v", err)
	}

	reopened, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("reopen spool: %v", err)
	}
	if stats := reopened.Stats(); stats.Batches != 1 {
		t.Fatalf("expected one intact batch after reopen, got %+v", stats)
	}

	var n int
	if err := reopened.Replay(func(points []domain.Point) error {
		n = len(points)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 points replayed, got %d", n)
	}
}

func TestFileSpoolTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	if err := s.Append(spoolPoints(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	intact := s.Stats().SizeBytes

	// simulate a crash mid-append: a header promising more bytes than exist
	path := filepath.Join(dir, "overflow.spool")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open spool file: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 1, 0, 'x'}); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	f.Close()

	reopened, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("reopen spool: %v", err)
	}
	stats := reopened.Stats()
	if stats.Batches != 1 || stats.SizeBytes != intact {
		t.Fatalf("torn tail not truncated: %+v (want size %d)", stats, intact)
	}

	if err := reopened.Replay(func([]domain.Point) error { return nil }); err != nil {
		t.Fatalf("replay after truncation: %v", err)
	}
}

func TestFileSpoolIgnoresEmptyAppend(t *testing.T) {
	s, err := NewFileSpool(t.TempDir())
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	if err := s.Append(nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if stats := s.Stats(); stats.Batches != 0 {
		t.Fatalf("empty append must not create a record, got %+v", stats)
	}
}
