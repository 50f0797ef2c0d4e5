package health

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// Snapshot is the immutable health view shared between the pipeline and the
// probe. Writers publish whole snapshots; readers always see a consistent
// copy, never a torn read.
type Snapshot struct {
	QueueDepth    int       `json:"queue_depth"`
	SinkReachable bool      `json:"sink_reachable"`
	LastSuccess   time.Time `json:"last_success"`
}

// State holds the current snapshot behind an atomic pointer swap.
type State struct {
	snap atomic.Pointer[Snapshot]
}

func NewState() *State {
	s := &State{}
	s.snap.Store(&Snapshot{})
	return s
}

func (s *State) Load() Snapshot {
	return *s.snap.Load()
}

func (s *State) update(fn func(Snapshot) Snapshot) {
	for {
		old := s.snap.Load()
		next := fn(*old)
		if s.snap.CompareAndSwap(old, &next) {
			return
		}
	}
}

// RecordSuccess marks the sink reachable and stamps the last successful
// write.
func (s *State) RecordSuccess(at time.Time) {
	s.update(func(snap Snapshot) Snapshot {
		snap.SinkReachable = true
		if at.After(snap.LastSuccess) {
			snap.LastSuccess = at
		}
		return snap
	})
}

// RecordSinkFailure marks the sink unreachable until the next success.
func (s *State) RecordSinkFailure() {
	s.update(func(snap Snapshot) Snapshot {
		snap.SinkReachable = false
		return snap
	})
}

func (s *State) SetQueueDepth(depth int) {
	s.update(func(snap Snapshot) Snapshot {
		snap.QueueDepth = depth
		return snap
	})
}

type Status int

const (
	Healthy Status = iota
	Degraded
	Unhealthy
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// Evaluate is a pure check of the snapshot against the policy: healthy iff
// the queue depth is below the ceiling, the sink is reachable and the last
// successful write is fresh. The returned reason names the failing condition.
func Evaluate(snap Snapshot, pol ports.Policy, now time.Time) (Status, string) {
	if !snap.SinkReachable {
		return Unhealthy, "sink unreachable"
	}
	if snap.LastSuccess.IsZero() {
		return Unhealthy, "no successful write yet"
	}
	if age := now.Sub(snap.LastSuccess); age > pol.Staleness {
		return Unhealthy, fmt.Sprintf("last successful write %s ago exceeds staleness window %s",
			age.Round(time.Second), pol.Staleness)
	}
	if pol.QueueCeiling > 0 && snap.QueueDepth >= pol.QueueCeiling {
		return Degraded, fmt.Sprintf("ingestion queue depth %d at ceiling %d",
			snap.QueueDepth, pol.QueueCeiling)
	}
	return Healthy, "ok"
}
