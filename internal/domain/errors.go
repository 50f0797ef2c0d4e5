package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrShuttingDown is returned by Submit once the pipeline has begun draining;
// no new points are accepted.
var ErrShuttingDown = errors.New("pipeline is shutting down")

// ErrQueueFull is returned by Submit when the bounded ingestion queue is at
// capacity.
var ErrQueueFull = errors.New("ingestion queue is full")

// ValidationError rejects a malformed point at the ingestion boundary. It is
// surfaced to the producer and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid point: " + e.Reason
}

// LateDataError rejects a point whose window has already been finalized.
type LateDataError struct {
	Key       string
	Timestamp time.Time
	Boundary  time.Time
}

func (e *LateDataError) Error() string {
	return fmt.Sprintf("late point for %s: timestamp %s precedes finalized boundary %s",
		e.Key, e.Timestamp.Format(time.RFC3339), e.Boundary.Format(time.RFC3339))
}

// SinkTransientError marks a sink failure as retryable (network errors,
// backend unavailable, rate limiting). Sinks wrap such failures so the writer
// can distinguish them from permanent rejections.
type SinkTransientError struct {
	Err error
}

func (e *SinkTransientError) Error() string {
	return "transient sink failure: " + e.Err.Error()
}

func (e *SinkTransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var te *SinkTransientError
	return errors.As(err, &te)
}

// SinkExhaustedError is terminal for a batch: the retry policy ran out before
// the sink accepted it.
type SinkExhaustedError struct {
	Attempts int
	Last     error
}

func (e *SinkExhaustedError) Error() string {
	return fmt.Sprintf("sink write failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *SinkExhaustedError) Unwrap() error { return e.Last }
