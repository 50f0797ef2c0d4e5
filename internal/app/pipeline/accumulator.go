package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// finalizeTick is how often the window finalizer consults the clock.
const finalizeTick = time.Second

// Accumulator folds raw points into tumbling aggregation windows keyed by
// (measurement, tag set, window start) and emits each window exactly once as
// a single aggregated point after window_size + grace_period has elapsed.
//
// Late points, whose window was already finalized for their series, are
// rejected with *domain.LateDataError, counted and logged; they never mutate
// a finalized result.
type Accumulator struct {
	pol ports.Policy
	obs ports.Observability
	clk clock.Clock

	in  <-chan domain.Batch
	out chan domain.Batch

	// owned by the Run goroutine
	windows   map[windowKey]*window
	finalized map[string]time.Time // series key -> start of newest finalized window
}

type windowKey struct {
	series string
	start  int64 // unix nanoseconds of the window start
}

type window struct {
	measurement string
	tags        map[string]string
	series      string
	start       time.Time
	fields      map[string]*fieldAgg
}

// fieldAgg is the incremental accumulator state for one numeric field. No raw
// history is retained.
type fieldAgg struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (a *fieldAgg) observe(v float64) {
	if a.count == 0 || v < a.min {
		a.min = v
	}
	if a.count == 0 || v > a.max {
		a.max = v
	}
	a.count++
	a.sum += v
}

func NewAccumulator(in <-chan domain.Batch, pol ports.Policy, obs ports.Observability, clk clock.Clock) *Accumulator {
	return &Accumulator{
		pol:       pol,
		obs:       obs,
		clk:       clk,
		in:        in,
		out:       make(chan domain.Batch, 16),
		windows:   make(map[windowKey]*window),
		finalized: make(map[string]time.Time),
	}
}

// Out carries one batch per finalized window, in finalization order. Closed
// after the force-emit on shutdown.
func (a *Accumulator) Out() <-chan domain.Batch { return a.out }

// Run consumes batches until the input channel closes, finalizing due windows
// on every clock tick. On shutdown all open windows are force-emitted as
// partial results.
func (a *Accumulator) Run(ctx context.Context) {
	ticker := a.clk.Ticker(finalizeTick)
	defer ticker.Stop()

	for {
		select {
		case batch, ok := <-a.in:
			if !ok {
				a.forceEmit()
				close(a.out)
				return
			}
			a.ingest(batch)
		case <-ticker.C:
			a.finalizeDue(a.clk.Now())
		case <-ctx.Done():
			a.forceEmit()
			close(a.out)
			return
		}
	}
}

// ingest folds every point of the batch into its window. Late points are
// counted and logged, not propagated.
func (a *Accumulator) ingest(batch domain.Batch) {
	for _, p := range batch.Points {
		if err := a.ingestPoint(p); err != nil {
			a.obs.IncCounter("swat_late_points_total", 1)
			a.obs.LogError("late_point_rejected", err)
		}
	}
	a.obs.SetGauge("swat_windows_open", float64(len(a.windows)))
}

func (a *Accumulator) ingestPoint(p domain.Point) error {
	series := p.SeriesKey()
	start := p.Timestamp.Truncate(a.pol.WindowSize)

	if boundary, ok := a.finalized[series]; ok && !start.After(boundary) {
		return &domain.LateDataError{Key: series, Timestamp: p.Timestamp, Boundary: boundary.Add(a.pol.WindowSize)}
	}

	key := windowKey{series: series, start: start.UnixNano()}
	w, ok := a.windows[key]
	if !ok {
		w = &window{
			measurement: p.Measurement,
			tags:        p.Tags,
			series:      series,
			start:       start,
			fields:      make(map[string]*fieldAgg),
		}
		a.windows[key] = w
	}

	for name, value := range p.Fields {
		v, ok := numeric(value)
		if !ok {
			continue
		}
		agg, ok := w.fields[name]
		if !ok {
			agg = &fieldAgg{}
			w.fields[name] = agg
		}
		agg.observe(v)
	}
	return nil
}

// finalizeDue emits every window whose grace period has elapsed, oldest
// first. Per series this preserves window order into the write path.
func (a *Accumulator) finalizeDue(now time.Time) int {
	var due []*window
	for key, w := range a.windows {
		if !now.Before(w.start.Add(a.pol.WindowSize).Add(a.pol.GracePeriod)) {
			due = append(due, w)
			delete(a.windows, key)
		}
	}
	sortWindows(due)

	for _, w := range due {
		a.emit(w, false)
		if prev, ok := a.finalized[w.series]; !ok || w.start.After(prev) {
			a.finalized[w.series] = w.start
		}
	}

	a.obs.SetGauge("swat_windows_open", float64(len(a.windows)))
	return len(due)
}

// forceEmit flushes all open windows as partial results during shutdown.
func (a *Accumulator) forceEmit() {
	var open []*window
	for key, w := range a.windows {
		open = append(open, w)
		delete(a.windows, key)
	}
	sortWindows(open)
	for _, w := range open {
		a.emit(w, true)
	}
}

func (a *Accumulator) emit(w *window, partial bool) {
	if len(w.fields) == 0 {
		return
	}

	tags := make(map[string]string, len(w.tags)+2)
	for k, v := range w.tags {
		tags[k] = v
	}
	tags["window"] = a.pol.WindowSize.String()
	if partial {
		tags["partial"] = "true"
	}

	fields := make(map[string]any, len(w.fields)*5)
	for name, agg := range w.fields {
		fields[name+"_count"] = agg.count
		fields[name+"_sum"] = agg.sum
		fields[name+"_min"] = agg.min
		fields[name+"_max"] = agg.max
		fields[name+"_avg"] = agg.sum / float64(agg.count)
	}

	a.out <- domain.Batch{
		Points: []domain.Point{{
			Measurement: w.measurement,
			Tags:        tags,
			Fields:      fields,
			Timestamp:   w.start,
		}},
		OpenedAt: w.start,
		Key:      w.series,
	}
	a.obs.IncCounter("swat_windows_finalized_total", 1)
}

func sortWindows(ws []*window) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].start.Equal(ws[j].start) {
			return ws[i].series < ws[j].series
		}
		return ws[i].start.Before(ws[j].start)
	})
}

func numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}
