package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// MissingError reports a required configuration key that is not set. Fatal at
// startup: the process must not start without it.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("required configuration %q is not set", e.Key)
}

type Config struct {
	Influx  InfluxConfig
	Discord DiscordConfig
	Metrics MetricsConfig
	Health  HealthConfig
	Spool   SpoolConfig
	Poller  PollerConfig
	Policy  ports.Policy
}

type InfluxConfig struct {
	URL          string
	Org          string
	Token        string
	Bucket       string
	UncheckedTLS bool
}

type DiscordConfig struct {
	WebhookID    string
	WebhookToken string
}

// Enabled reports whether a Discord webhook is configured. Without one,
// alerts go to the service log only.
func (d DiscordConfig) Enabled() bool {
	return d.WebhookID != "" && d.WebhookToken != ""
}

type MetricsConfig struct {
	Addr string
}

type HealthConfig struct {
	SocketPath string
}

type SpoolConfig struct {
	Dir string
}

type PollerConfig struct {
	Enabled  bool
	BaseURL  string
	Interval time.Duration
}

// Load resolves the configuration from the environment (SWAT_ prefix, with
// the legacy unprefixed names for the InfluxDB and Discord credentials) and
// optionally from a config file. Values are read once; the result is
// read-only afterwards. Call Validate before starting the pipeline.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Deployment contract of the original compose file.
	_ = v.BindEnv("influx.url", "SWAT_INFLUX_URL", "INFLUXDB_URL")
	_ = v.BindEnv("influx.org", "SWAT_INFLUX_ORG", "INFLUXDB_ORG")
	_ = v.BindEnv("influx.token", "SWAT_INFLUX_TOKEN", "INFLUXDB_TOKEN")
	_ = v.BindEnv("discord.webhook_id", "SWAT_DISCORD_WEBHOOK_ID", "DISCORD_WEBHOOK_ID")
	_ = v.BindEnv("discord.webhook_token", "SWAT_DISCORD_WEBHOOK_TOKEN", "DISCORD_WEBHOOK_TOKEN")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Influx: InfluxConfig{
			URL:          v.GetString("influx.url"),
			Org:          v.GetString("influx.org"),
			Token:        v.GetString("influx.token"),
			Bucket:       v.GetString("influx.bucket"),
			UncheckedTLS: v.GetBool("influx.unchecked_tls"),
		},
		Discord: DiscordConfig{
			WebhookID:    v.GetString("discord.webhook_id"),
			WebhookToken: v.GetString("discord.webhook_token"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Health: HealthConfig{
			SocketPath: v.GetString("health.socket_path"),
		},
		Spool: SpoolConfig{
			Dir: v.GetString("spool.dir"),
		},
		Poller: PollerConfig{
			Enabled:  !v.IsSet("poller.enabled") || v.GetBool("poller.enabled"),
			BaseURL:  v.GetString("poller.base_url"),
			Interval: v.GetDuration("poller.interval"),
		},
		Policy: ports.Policy{
			MaxBatchSize:      v.GetInt("policy.max_batch_size"),
			MaxBatchAge:       v.GetDuration("policy.max_batch_age"),
			MaxQueueLen:       v.GetInt("policy.max_queue_len"),
			QueueCeiling:      v.GetInt("policy.queue_ceiling"),
			IdleSleep:         v.GetDuration("policy.idle_sleep"),
			WindowSize:        v.GetDuration("policy.window_size"),
			GracePeriod:       v.GetDuration("policy.grace_period"),
			MaxWriteAttempts:  v.GetInt("policy.max_write_attempts"),
			InitialBackoff:    v.GetDuration("policy.initial_backoff"),
			MaxBackoff:        v.GetDuration("policy.max_backoff"),
			WriterConcurrency: v.GetInt("policy.writer_concurrency"),
			Staleness:         v.GetDuration("policy.staleness"),
			AlertCooldown:     v.GetDuration("policy.alert_cooldown"),
			DrainGrace:        v.GetDuration("policy.drain_grace"),
		},
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Influx.Bucket == "" {
		c.Influx.Bucket = "swat"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Health.SocketPath == "" {
		c.Health.SocketPath = "/tmp/wisdom/swat-collector.health.sock"
	}
	if c.Spool.Dir == "" {
		c.Spool.Dir = "./data/spool"
	}
	if c.Poller.BaseURL == "" {
		c.Poller.BaseURL = "https://swat.itwh.de"
	}
	if c.Poller.Interval == 0 {
		c.Poller.Interval = 120 * time.Second
	}

	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 100
	}
	if c.Policy.MaxBatchAge == 0 {
		c.Policy.MaxBatchAge = time.Second
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.QueueCeiling == 0 {
		c.Policy.QueueCeiling = 8_000
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.WindowSize == 0 {
		c.Policy.WindowSize = time.Minute
	}
	if c.Policy.GracePeriod == 0 {
		c.Policy.GracePeriod = 5 * time.Second
	}
	if c.Policy.MaxWriteAttempts == 0 {
		c.Policy.MaxWriteAttempts = 5
	}
	if c.Policy.InitialBackoff == 0 {
		c.Policy.InitialBackoff = 500 * time.Millisecond
	}
	if c.Policy.MaxBackoff == 0 {
		c.Policy.MaxBackoff = 30 * time.Second
	}
	if c.Policy.WriterConcurrency == 0 {
		c.Policy.WriterConcurrency = 4
	}
	if c.Policy.Staleness == 0 {
		c.Policy.Staleness = 3 * time.Minute
	}
	if c.Policy.AlertCooldown == 0 {
		c.Policy.AlertCooldown = 10 * time.Minute
	}
	if c.Policy.DrainGrace == 0 {
		c.Policy.DrainGrace = 10 * time.Second
	}
}

// Validate checks the required connection parameters. The health probe can
// run without them, the pipeline cannot.
func (c *Config) Validate() error {
	if c.Influx.URL == "" {
		return &MissingError{Key: "influx.url"}
	}
	if c.Influx.Org == "" {
		return &MissingError{Key: "influx.org"}
	}
	if c.Influx.Token == "" {
		return &MissingError{Key: "influx.token"}
	}
	if (c.Discord.WebhookID == "") != (c.Discord.WebhookToken == "") {
		return errors.New("discord.webhook_id and discord.webhook_token must be set together")
	}
	return nil
}
