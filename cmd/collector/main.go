// The collector gathers raw telemetry points and writes them to InfluxDB
// unchanged. Run with --health-check to probe a running instance instead,
// for the container health check.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wisdom-oss/service-swat-collector/internal/app"
	"github.com/wisdom-oss/service-swat-collector/internal/app/config"
	"github.com/wisdom-oss/service-swat-collector/internal/health"
)

func main() {
	os.Exit(run())
}

func run() int {
	healthCheck := flag.Bool("health-check", false, "Probe the running service and exit; 0 means healthy")
	uncheckedTLS := flag.Bool("unchecked-tls", false, "Skip TLS certificate verification towards InfluxDB")
	configFile := flag.String("config", "", "Optional configuration file (environment variables take precedence)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swat-collector: %v\n", err)
		return 1
	}

	if *healthCheck {
		return health.Probe(cfg.Health.SocketPath, cfg.Policy, time.Now(), os.Stderr)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "swat-collector: %v\n", err)
		return 1
	}
	if *uncheckedTLS {
		cfg.Influx.UncheckedTLS = true
	}

	runtime, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swat-collector: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runtime.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "swat-collector: %v\n", err)
		return 1
	}
	return 0
}
