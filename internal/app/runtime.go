package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wisdom-oss/service-swat-collector/internal/adapters/discord"
	"github.com/wisdom-oss/service-swat-collector/internal/adapters/influx"
	"github.com/wisdom-oss/service-swat-collector/internal/adapters/observability"
	"github.com/wisdom-oss/service-swat-collector/internal/adapters/queue"
	"github.com/wisdom-oss/service-swat-collector/internal/adapters/spool"
	"github.com/wisdom-oss/service-swat-collector/internal/adapters/swat"
	"github.com/wisdom-oss/service-swat-collector/internal/app/config"
	"github.com/wisdom-oss/service-swat-collector/internal/app/pipeline"
	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/health"
	"github.com/wisdom-oss/service-swat-collector/internal/notify"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// Option customizes the dependencies wired into the Runtime.
type Option func(*overrides)

type overrides struct {
	sink      ports.Sink
	queue     ports.PointQueue
	spool     ports.Spool
	notifier  ports.Notifier
	obs       ports.Observability
	clk       clock.Clock
	producers []ports.Producer
	logger    *zap.Logger
	aggregate bool
	noSpool   bool
}

// WithSink injects a custom sink so points can be written to any backend.
func WithSink(s ports.Sink) Option { return func(o *overrides) { o.sink = s } }

// WithQueue injects a custom ingestion queue implementation.
func WithQueue(q ports.PointQueue) Option { return func(o *overrides) { o.queue = q } }

// WithSpool injects a custom overflow spool.
func WithSpool(s ports.Spool) Option { return func(o *overrides) { o.spool = s } }

// WithoutSpool disables the overflow spool; exhausted batches are dropped
// after logging and alerting.
func WithoutSpool() Option { return func(o *overrides) { o.noSpool = true } }

// WithNotifier injects a custom alerting backend.
func WithNotifier(n ports.Notifier) Option { return func(o *overrides) { o.notifier = n } }

// WithObservability plugs in a custom metrics/logging backend.
func WithObservability(obs ports.Observability) Option { return func(o *overrides) { o.obs = obs } }

// WithClock injects a clock, letting tests advance time deterministically.
func WithClock(clk clock.Clock) Option { return func(o *overrides) { o.clk = clk } }

// WithProducer adds a point producer. When at least one producer is given the
// built-in forecast poller is not started.
func WithProducer(p ports.Producer) Option {
	return func(o *overrides) { o.producers = append(o.producers, p) }
}

// WithAggregation enables the windowed accumulator stage between buffer and
// writer. Without it raw batches pass straight to the sink.
func WithAggregation() Option { return func(o *overrides) { o.aggregate = true } }

// WithLogger overrides the default production logger.
func WithLogger(l *zap.Logger) Option { return func(o *overrides) { o.logger = l } }

// Runtime wires the submit -> buffer -> (accumulator) -> writer pipeline
// together with the health socket, metrics server and notifier, and owns
// their lifecycle.
type Runtime struct {
	cfg *config.Config
	pol ports.Policy
	obs ports.Observability
	clk clock.Clock

	queue     ports.PointQueue
	buffer    *pipeline.Buffer
	acc       *pipeline.Accumulator
	writer    *pipeline.Writer
	sink      ports.Sink
	ownedSink *influx.Sink
	spool     ports.Spool
	notifier  ports.Notifier
	manager   *notify.Manager
	producers []ports.Producer

	state      *health.State
	healthLn   *health.Listener
	metricsSrv *http.Server
	logger     *zap.Logger

	prodCh      chan domain.Point
	upstream    <-chan domain.Batch
	writeIn     chan domain.Batch
	writeWg     sync.WaitGroup
	cancelBuf   context.CancelFunc
	cancelWrite context.CancelFunc
	stopGauges  chan struct{}
	wg          sync.WaitGroup
}

// New assembles a Runtime from the configuration, using the default adapters
// (InfluxDB sink, file spool, in-memory queue, Discord notifier, forecast
// poller) for anything not overridden.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return nil, err
		}
	}

	obs := o.obs
	if obs == nil {
		obs = observability.NewTelemetry(logger, prometheus.DefaultRegisterer)
	}

	clk := o.clk
	if clk == nil {
		clk = clock.New()
	}

	q := o.queue
	if q == nil {
		q = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	snk := o.sink
	var ownedSink *influx.Sink
	if snk == nil {
		ownedSink = influx.NewSink(cfg.Influx.URL, cfg.Influx.Org, cfg.Influx.Token,
			cfg.Influx.Bucket, cfg.Influx.UncheckedTLS)
		snk = ownedSink
	}

	var sp ports.Spool
	if !o.noSpool {
		sp = o.spool
		if sp == nil {
			var err error
			sp, err = spool.NewFileSpool(cfg.Spool.Dir)
			if err != nil {
				return nil, fmt.Errorf("open overflow spool: %w", err)
			}
		}
	}

	notifier := o.notifier
	var manager *notify.Manager
	if notifier == nil {
		var sender notify.Sender
		if cfg.Discord.Enabled() {
			sender = discord.NewWebhook(cfg.Discord.WebhookID, cfg.Discord.WebhookToken)
		} else {
			sender = notify.LogSender{Obs: obs}
		}
		manager = notify.NewManager(sender, cfg.Policy.AlertCooldown, clk, obs)
		notifier = manager
	}

	state := health.NewState()
	buffer := pipeline.NewBuffer(q, cfg.Policy, obs, clk)

	var (
		acc      *pipeline.Accumulator
		upstream <-chan domain.Batch
	)
	if o.aggregate {
		acc = pipeline.NewAccumulator(buffer.Out(), cfg.Policy, obs, clk)
		upstream = acc.Out()
	} else {
		upstream = buffer.Out()
	}

	// The writer reads from its own channel rather than the upstream stage
	// directly so spool replay can feed batches straight into the write path;
	// spooled batches already passed the buffer (and accumulator) once.
	writeIn := make(chan domain.Batch, 16)
	writer := pipeline.NewWriter(writeIn, snk, sp, notifier, state, cfg.Policy, obs, clk)

	producers := o.producers
	if len(producers) == 0 && cfg.Poller.Enabled {
		locations, err := swat.LoadLocations()
		if err != nil {
			return nil, fmt.Errorf("load location manifest: %w", err)
		}
		producers = append(producers,
			swat.NewPoller(cfg.Poller.BaseURL, cfg.Poller.Interval, locations, clk, obs, notifier))
	}

	return &Runtime{
		cfg:       cfg,
		pol:       cfg.Policy,
		obs:       obs,
		clk:       clk,
		queue:     q,
		buffer:    buffer,
		acc:       acc,
		writer:    writer,
		sink:      snk,
		ownedSink: ownedSink,
		spool:     sp,
		notifier:  notifier,
		manager:   manager,
		producers: producers,
		state:     state,
		healthLn:  health.NewListener(state, cfg.Health.SocketPath, obs),
		logger:    logger,
		prodCh:    make(chan domain.Point, cfg.Policy.MaxBatchSize),
		upstream:  upstream,
		writeIn:   writeIn,
	}, nil
}

// Submit feeds one point into the pipeline. Safe for concurrent use.
func (r *Runtime) Submit(p domain.Point) error {
	return r.buffer.Submit(p)
}

// Health returns the current health snapshot.
func (r *Runtime) Health() health.Snapshot {
	return r.state.Load()
}

// Start launches the pipeline stages, producers, health socket and metrics
// server. It returns immediately; call Run to block on a context instead.
func (r *Runtime) Start() error {
	if r.ownedSink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := r.ownedSink.EnsureBucket(ctx); err != nil {
			r.obs.LogError("influxdb_bucket_setup_failed", err)
		}
		cancel()
	}

	r.replaySpool()

	go func() {
		if err := r.healthLn.Listen(); err != nil {
			r.obs.LogError("health_listener_failed", err)
		}
	}()
	r.startMetrics()

	bufCtx, cancelBuf := context.WithCancel(context.Background())
	writeCtx, cancelWrite := context.WithCancel(context.Background())
	r.cancelBuf = cancelBuf
	r.cancelWrite = cancelWrite

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.buffer.Run(bufCtx)
	}()

	if r.acc != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.acc.Run(context.Background())
		}()
	}

	// forward upstream batches to the writer; the writer input is closed only
	// once the upstream stage has drained and any spool replay has finished
	r.wg.Add(1)
	r.writeWg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.writeWg.Done()
		for batch := range r.upstream {
			r.writeIn <- batch
		}
	}()
	go func() {
		r.writeWg.Wait()
		close(r.writeIn)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.writer.Run(writeCtx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pump()
	}()

	r.stopGauges = make(chan struct{})
	go r.recordGauges(r.stopGauges, time.Second)

	for _, p := range r.producers {
		if err := p.Start(r.prodCh); err != nil {
			return fmt.Errorf("start producer: %w", err)
		}
	}

	r.obs.LogInfo("pipeline_started",
		ports.Field{Key: "sink", Value: r.sink.Name()},
		ports.Field{Key: "aggregation", Value: r.acc != nil})
	return nil
}

// Run starts the runtime and blocks until the context is cancelled, then
// drains within the configured grace period.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.pol.DrainGrace)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops accepting new points, drains in-flight batches, force-emits
// open windows and releases all resources. Retry backoffs still pending when
// ctx expires are cut short; their batches land in the overflow spool.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	for _, p := range r.producers {
		if err := p.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	close(r.prodCh)

	if r.stopGauges != nil {
		close(r.stopGauges)
	}
	if r.cancelBuf != nil {
		r.cancelBuf()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if r.cancelWrite != nil {
			r.cancelWrite()
		}
		timer := r.clk.Timer(2 * time.Second)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			errs = append(errs, errors.New("pipeline did not drain within the grace period"))
		}
	}

	if r.manager != nil {
		r.manager.Flush()
	}

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if err := r.healthLn.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.ownedSink != nil {
		r.ownedSink.Close()
	}
	_ = r.logger.Sync()

	return errors.Join(errs...)
}

// pump moves producer points into the buffer, surfacing rejections in the
// log without stopping the producer.
func (r *Runtime) pump() {
	for p := range r.prodCh {
		if err := r.buffer.Submit(p); err != nil {
			r.obs.LogError("point_rejected", err,
				ports.Field{Key: "measurement", Value: p.Measurement})
		}
	}
}

// replaySpool hands batches persisted during a previous run straight to the
// writer. They were spooled at the write stage, so in the aggregating binary
// they are finalized window results already; routing them through the buffer
// would fold them into windows a second time.
func (r *Runtime) replaySpool() {
	if r.spool == nil {
		return
	}
	stats := r.spool.Stats()
	if stats.Batches == 0 {
		return
	}

	var batches []domain.Batch
	points := 0
	err := r.spool.Replay(func(pts []domain.Point) error {
		batch := domain.Batch{Points: pts, OpenedAt: r.clk.Now()}
		if len(pts) > 0 {
			batch.Key = pts[0].SeriesKey()
		}
		batches = append(batches, batch)
		points += len(pts)
		return nil
	})
	if err != nil {
		r.obs.LogError("spool_replay_incomplete", err,
			ports.Field{Key: "batches", Value: len(batches)})
		return
	}

	r.wg.Add(1)
	r.writeWg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.writeWg.Done()
		for _, b := range batches {
			r.writeIn <- b
		}
	}()

	r.obs.LogInfo("spool_replay_complete",
		ports.Field{Key: "batches", Value: stats.Batches},
		ports.Field{Key: "points", Value: points})
}

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status, reason := health.Evaluate(r.state.Load(), r.pol, r.clk.Now())
		if status == health.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, "%s: %s\n", status, reason)
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err)
		}
	}()
}

func (r *Runtime) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := r.clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			depth := r.queue.Len()
			r.state.SetQueueDepth(depth)
			r.obs.SetGauge("swat_queue_depth", float64(depth))
			if r.spool != nil {
				r.obs.SetGauge("swat_spool_size_bytes", float64(r.spool.Stats().SizeBytes))
			}
		}
	}
}
