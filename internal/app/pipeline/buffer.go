package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// Buffer is the ingestion stage: producers submit points through Submit, a
// drain loop groups them into batches and hands each batch downstream when it
// reaches max_batch_size points or max_batch_age, whichever comes first.
type Buffer struct {
	queue ports.PointQueue
	pol   ports.Policy
	obs   ports.Observability
	clk   clock.Clock

	out      chan domain.Batch
	draining atomic.Bool

	// owned by the drain goroutine
	pending  []domain.Point
	openedAt time.Time
}

func NewBuffer(q ports.PointQueue, pol ports.Policy, obs ports.Observability, clk clock.Clock) *Buffer {
	return &Buffer{
		queue: q,
		pol:   pol,
		obs:   obs,
		clk:   clk,
		out:   make(chan domain.Batch, 16),
	}
}

// Out is the batch hand-off channel. It is closed once the buffer has fully
// drained during shutdown.
func (b *Buffer) Out() <-chan domain.Batch { return b.out }

// Submit validates and enqueues one point. It never blocks: a full queue or a
// draining pipeline rejects the point immediately.
func (b *Buffer) Submit(p domain.Point) error {
	if b.draining.Load() {
		b.obs.IncCounter("swat_points_rejected_total", 1)
		return domain.ErrShuttingDown
	}
	if err := p.Validate(); err != nil {
		b.obs.IncCounter("swat_points_rejected_total", 1)
		return err
	}
	if !b.queue.Enqueue(p) {
		b.obs.IncCounter("swat_points_rejected_total", 1)
		return domain.ErrQueueFull
	}
	b.obs.IncCounter("swat_points_submitted_total", 1)
	return nil
}

// Run drives the drain loop until ctx is cancelled, then performs a final
// forced drain and closes the hand-off channel.
func (b *Buffer) Run(ctx context.Context) {
	ticker := b.clk.Ticker(b.pol.IdleSleep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.draining.Store(true)
			b.drainOnce(b.clk.Now(), true)
			close(b.out)
			return
		case <-ticker.C:
			b.drainOnce(b.clk.Now(), false)
		}
	}
}

// drainOnce pulls queued points into the pending batch, emitting full batches
// and, when the oldest pending point has reached max_batch_age (or force is
// set), the partial remainder. An empty queue at the age boundary emits
// nothing. Returns the number of batches emitted.
func (b *Buffer) drainOnce(now time.Time, force bool) int {
	emitted := 0

	for {
		got := b.queue.DequeueBatch(b.pol.MaxBatchSize - len(b.pending))
		if len(got) > 0 {
			if len(b.pending) == 0 {
				b.openedAt = now
			}
			b.pending = append(b.pending, got...)
		}

		if len(b.pending) >= b.pol.MaxBatchSize {
			b.emit()
			emitted++
			continue
		}
		break
	}

	if len(b.pending) > 0 && (force || now.Sub(b.openedAt) >= b.pol.MaxBatchAge) {
		b.emit()
		emitted++
	}

	b.obs.SetGauge("swat_queue_depth", float64(b.queue.Len()))
	return emitted
}

func (b *Buffer) emit() {
	batch := domain.Batch{Points: b.pending, OpenedAt: b.openedAt}
	b.pending = nil
	b.out <- batch
	b.obs.IncCounter("swat_batches_emitted_total", 1)
}
