package health

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

func evalPolicy() ports.Policy {
	return ports.Policy{
		Staleness:    3 * time.Minute,
		QueueCeiling: 100,
	}
}

func TestEvaluateUnreachableSink(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := Snapshot{SinkReachable: false, LastSuccess: now}

	status, reason := Evaluate(snap, evalPolicy(), now)
	if status != Unhealthy || reason != "sink unreachable" {
		t.Fatalf("got %s %q", status, reason)
	}
}

func TestEvaluateNoSuccessfulWriteYet(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := Snapshot{SinkReachable: true}

	status, reason := Evaluate(snap, evalPolicy(), now)
	if status != Unhealthy || reason != "no successful write yet" {
		t.Fatalf("got %s %q", status, reason)
	}
}

func TestEvaluateStaleWrite(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := Snapshot{SinkReachable: true, LastSuccess: now.Add(-4 * time.Minute)}

	status, reason := Evaluate(snap, evalPolicy(), now)
	if status != Unhealthy || !strings.Contains(reason, "staleness") {
		t.Fatalf("got %s %q", status, reason)
	}
}

func TestEvaluateQueueAtCeiling(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := Snapshot{SinkReachable: true, LastSuccess: now, QueueDepth: 100}

	status, reason := Evaluate(snap, evalPolicy(), now)
	if status != Degraded || !strings.Contains(reason, "ceiling") {
		t.Fatalf("got %s %q", status, reason)
	}
}

func TestEvaluateHealthy(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := Snapshot{SinkReachable: true, LastSuccess: now.Add(-time.Minute), QueueDepth: 10}

	status, reason := Evaluate(snap, evalPolicy(), now)
	if status != Healthy || reason != "ok" {
		t.Fatalf("got %s %q", status, reason)
	}
}

func TestStateRecordSuccessIsMonotonic(t *testing.T) {
	s := NewState()
	newer := time.Unix(2000, 0)
	older := time.Unix(1000, 0)

	s.RecordSuccess(newer)
	s.RecordSuccess(older)

	snap := s.Load()
	if !snap.LastSuccess.Equal(newer) {
		t.Fatalf("older success overwrote newer: %v", snap.LastSuccess)
	}
	if !snap.SinkReachable {
		t.Fatalf("success must mark the sink reachable")
	}
}

func TestStateFailureFlipsReachability(t *testing.T) {
	s := NewState()
	s.RecordSuccess(time.Unix(1000, 0))
	s.RecordSinkFailure()

	snap := s.Load()
	if snap.SinkReachable {
		t.Fatalf("failure must mark the sink unreachable")
	}
	if snap.LastSuccess.IsZero() {
		t.Fatalf("failure must not erase the last success stamp")
	}
}

func TestStateConcurrentUpdates(t *testing.T) {
	s := NewState()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.SetQueueDepth(n*1000 + j)
				s.RecordSuccess(time.Unix(int64(j), 0))
			}
		}(i)
	}
	wg.Wait()

	snap := s.Load()
	if snap.QueueDepth == 0 && snap.LastSuccess.IsZero() {
		t.Fatalf("updates lost: %+v", snap)
	}
}
