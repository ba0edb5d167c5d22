package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	TrackIt  TrackItConfig  `yaml:"trackit"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	PackageUpdatedTopicName string `yaml:"package_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TrackItConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	SummaryTTLSeconds  int    `yaml:"summary_ttl_seconds"`

	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int    `yaml:"worker_batch_size"`
	WorkerConcurrency         int    `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int    `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int    `yaml:"worker_rate_limit_per_minute"`
	WorkerFetchTimeoutSeconds int    `yaml:"worker_fetch_timeout_seconds"`

	// Scheduling (optional). If not set, defaults are "prod-like":
	// active: 30..120 minutes, idle: 90 minutes, backoff: 5/15/30/60 minutes.
	NextCheckActiveMinSeconds int `yaml:"next_check_active_min_seconds"`
	NextCheckActiveMaxSeconds int `yaml:"next_check_active_max_seconds"`
	NextCheckIdleSeconds      int `yaml:"next_check_idle_seconds"`
	Backoff1Seconds           int `yaml:"backoff_1_seconds"`
	Backoff2Seconds           int `yaml:"backoff_2_seconds"`
	Backoff3Seconds           int `yaml:"backoff_3_seconds"`
	Backoff4Seconds           int `yaml:"backoff_4_seconds"`

	ProviderBaseURL string `yaml:"provider_base_url"`
	ProviderAPIKey  string `yaml:"provider_api_key"`
	ProviderMode    string `yaml:"provider_mode"` // "ship24" | "fake"

	GeocoderBaseURL            string `yaml:"geocoder_base_url"`
	GeocoderRateLimitPerMinute int    `yaml:"geocoder_rate_limit_per_minute"`
	GeocoderTimeoutSeconds     int    `yaml:"geocoder_timeout_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
