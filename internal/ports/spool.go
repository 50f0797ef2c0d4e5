package ports

import "github.com/wisdom-oss/service-swat-collector/internal/domain"

// Spool is the on-disk overflow store for batches whose delivery exhausted
// the retry policy. Spooled batches are replayed into the pipeline on the
// next startup.
type Spool interface {
	Append(points []domain.Point) error
	// Replay invokes fn for every spooled batch in append order. If every
	// invocation succeeds the spool is reset.
	Replay(fn func(points []domain.Point) error) error
	Stats() SpoolStats
}

type SpoolStats struct {
	Batches   int
	SizeBytes int64
}
