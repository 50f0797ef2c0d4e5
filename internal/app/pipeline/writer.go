package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/health"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// alertKindSink is the notifier kind used for write failures.
const alertKindSink = "sink_write_failed"

// Writer delivers batches to the sink through a sharded worker pool. Batches
// carrying the same key (one aggregation series) always land on the same
// shard, so their writes retain finalization order; distinct keys spread
// round-robin across shards up to the configured concurrency.
type Writer struct {
	sink     ports.Sink
	spool    ports.Spool
	notifier ports.Notifier
	pol      ports.Policy
	obs      ports.Observability
	clk      clock.Clock
	state    *health.State

	in <-chan domain.Batch
	rr atomic.Uint64
}

func NewWriter(in <-chan domain.Batch, sink ports.Sink, spool ports.Spool, notifier ports.Notifier,
	state *health.State, pol ports.Policy, obs ports.Observability, clk clock.Clock) *Writer {
	return &Writer{
		sink:     sink,
		spool:    spool,
		notifier: notifier,
		pol:      pol,
		obs:      obs,
		clk:      clk,
		state:    state,
		in:       in,
	}
}

// Run dispatches batches to the shard workers until the input channel closes,
// then waits for in-flight deliveries. Cancelling ctx cuts retry backoffs
// short so draining stays within the shutdown grace period.
func (w *Writer) Run(ctx context.Context) {
	n := w.pol.WriterConcurrency
	if n < 1 {
		n = 1
	}

	shards := make([]chan domain.Batch, n)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan domain.Batch, 16)
		wg.Add(1)
		go func(ch <-chan domain.Batch) {
			defer wg.Done()
			for batch := range ch {
				_ = w.deliver(ctx, batch)
			}
		}(shards[i])
	}

	for batch := range w.in {
		shards[w.shardFor(batch, n)] <- batch
	}
	for _, ch := range shards {
		close(ch)
	}
	wg.Wait()
}

func (w *Writer) shardFor(batch domain.Batch, n int) int {
	if batch.Key != "" {
		return int(xxhash.Sum64String(batch.Key) % uint64(n))
	}
	return int(w.rr.Add(1) % uint64(n))
}

type deliveryState int

const (
	stateAttempting deliveryState = iota
	stateBackoff
	stateExhausted
)

// deliver runs the retry state machine for one batch:
// Attempting -> Backoff -> Attempting ... until success, a permanent error,
// or the attempt budget is spent. Exhaustion diverts the batch to the
// overflow spool and raises an alert; the error return is terminal for the
// batch, never for the pipeline.
func (w *Writer) deliver(ctx context.Context, batch domain.Batch) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.pol.InitialBackoff
	bo.MaxInterval = w.pol.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	var (
		state    = stateAttempting
		attempts int
		lastErr  error
	)

	for {
		switch state {
		case stateAttempting:
			attempts++
			start := w.clk.Now()
			err := w.sink.WriteBatch(ctx, batch.Points)
			if err == nil {
				w.obs.ObserveLatency("swat_write_latency_seconds", w.clk.Now().Sub(start).Seconds())
				w.obs.IncCounter("swat_points_written_total", float64(len(batch.Points)))
				w.state.RecordSuccess(w.clk.Now())
				w.notifier.Clear(alertKindSink)
				return nil
			}

			lastErr = err
			if !domain.IsTransient(err) {
				// a permanent rejection means the backend is reachable
				state = stateExhausted
				continue
			}
			w.state.RecordSinkFailure()
			if attempts >= w.pol.MaxWriteAttempts {
				state = stateExhausted
				continue
			}
			w.obs.IncCounter("swat_write_retries_total", 1)
			state = stateBackoff

		case stateBackoff:
			timer := w.clk.Timer(bo.NextBackOff())
			select {
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				state = stateExhausted
			case <-timer.C:
				state = stateAttempting
			}

		case stateExhausted:
			err := &domain.SinkExhaustedError{Attempts: attempts, Last: lastErr}
			w.obs.LogError("sink_write_exhausted", err,
				ports.Field{Key: "points", Value: len(batch.Points)},
				ports.Field{Key: "sink", Value: w.sink.Name()})

			if w.spool != nil {
				if serr := w.spool.Append(batch.Points); serr != nil {
					w.obs.LogCritical("spool_append_failed", serr,
						ports.Field{Key: "points", Value: len(batch.Points)})
				} else {
					w.obs.IncCounter("swat_batches_spooled_total", 1)
				}
			}

			w.notifier.Alert(alertKindSink, err.Error())
			return err
		}
	}
}
