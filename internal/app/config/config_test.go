package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "swat", cfg.Influx.Bucket)
	require.Equal(t, ":9100", cfg.Metrics.Addr)
	require.Equal(t, "https://swat.itwh.de", cfg.Poller.BaseURL)
	require.Equal(t, 120*time.Second, cfg.Poller.Interval)
	require.True(t, cfg.Poller.Enabled, "poller must default to enabled")

	require.Equal(t, 100, cfg.Policy.MaxBatchSize)
	require.Equal(t, time.Second, cfg.Policy.MaxBatchAge)
	require.Equal(t, 5, cfg.Policy.MaxWriteAttempts)
	require.Equal(t, time.Minute, cfg.Policy.WindowSize)
	require.Equal(t, 5*time.Second, cfg.Policy.GracePeriod)
	require.Equal(t, 3*time.Minute, cfg.Policy.Staleness)
	require.Equal(t, 10*time.Minute, cfg.Policy.AlertCooldown)
}

func TestLoadReadsPrefixedEnvironment(t *testing.T) {
	t.Setenv("SWAT_INFLUX_URL", "https://influx.example:8086")
	t.Setenv("SWAT_INFLUX_ORG", "wisdom")
	t.Setenv("SWAT_INFLUX_TOKEN", "tok")
	t.Setenv("SWAT_POLICY_MAX_BATCH_SIZE", "250")
	t.Setenv("SWAT_POLLER_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://influx.example:8086", cfg.Influx.URL)
	require.Equal(t, 250, cfg.Policy.MaxBatchSize)
	require.False(t, cfg.Poller.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsLegacyEnvironmentNames(t *testing.T) {
	t.Setenv("INFLUXDB_URL", "https://legacy.example:8086")
	t.Setenv("INFLUXDB_ORG", "legacy-org")
	t.Setenv("INFLUXDB_TOKEN", "legacy-token")
	t.Setenv("DISCORD_WEBHOOK_ID", "123")
	t.Setenv("DISCORD_WEBHOOK_TOKEN", "abc")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://legacy.example:8086", cfg.Influx.URL)
	require.Equal(t, "legacy-org", cfg.Influx.Org)
	require.True(t, cfg.Discord.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresInfluxSettings(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "influx.url", missing.Key)
}

func TestValidateRejectsHalfConfiguredDiscord(t *testing.T) {
	t.Setenv("SWAT_INFLUX_URL", "https://influx.example:8086")
	t.Setenv("SWAT_INFLUX_ORG", "wisdom")
	t.Setenv("SWAT_INFLUX_TOKEN", "tok")
	t.Setenv("DISCORD_WEBHOOK_ID", "123")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Error(t, cfg.Validate(), "webhook id without token must be rejected")
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.toml")
	content := `[influx]
url = "https://file.example:8086"
org = "file-org"
token = "file-token"

[policy]
window_size = "5m"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://file.example:8086", cfg.Influx.URL)
	require.Equal(t, 5*time.Minute, cfg.Policy.WindowSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestDiscordEnabled(t *testing.T) {
	require.False(t, DiscordConfig{WebhookID: "1"}.Enabled())
	require.False(t, DiscordConfig{WebhookToken: "t"}.Enabled())
	require.True(t, DiscordConfig{WebhookID: "1", WebhookToken: "t"}.Enabled())
}
