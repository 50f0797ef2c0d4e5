package ports

import "time"

// Policy holds the thresholds steering batching, windowing, retry and health
// evaluation.
type Policy struct {
	MaxBatchSize int
	MaxBatchAge  time.Duration
	MaxQueueLen  int
	// QueueCeiling is the depth above which the health probe reports the
	// ingestion path as degraded.
	QueueCeiling int
	IdleSleep    time.Duration

	WindowSize  time.Duration
	GracePeriod time.Duration

	MaxWriteAttempts  int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	WriterConcurrency int

	// Staleness is how long the last successful sink write may lie in the
	// past before the process reports unhealthy.
	Staleness time.Duration

	AlertCooldown time.Duration
	DrainGrace    time.Duration
}
