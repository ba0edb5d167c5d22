package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  package_updated_topic_name: "package.updated"
redis:
  host: "localhost"
  port: 6379
trackit:
  http_addr: ":8080"
  kafka_consumer_group: "trackit-api"
  summary_ttl_seconds: 600
  provider_base_url: "https://api.ship24.com"
  geocoder_rate_limit_per_minute: 60
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "package.updated", cfg.Kafka.PackageUpdatedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.TrackIt.HTTPAddr)
	require.Equal(t, 600, cfg.TrackIt.SummaryTTLSeconds)
	require.Equal(t, "https://api.ship24.com", cfg.TrackIt.ProviderBaseURL)
	require.Equal(t, 60, cfg.TrackIt.GeocoderRateLimitPerMinute)
}

func TestLoadConfig_missingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
