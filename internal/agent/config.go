package agent

import (
	"fmt"

	"github.com/spf13/viper"
)

type CollectorConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RetryAttempts  int    `mapstructure:"retry_attempts"`
}

type MonitoringConfig struct {
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	Interface       string `mapstructure:"interface"`
	MaxFailures     int    `mapstructure:"max_failures"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type Config struct {
	Collector  CollectorConfig  `mapstructure:"collector"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// LoadConfig reads the agent YAML config. Env vars prefixed TSMON_
// override file values (TSMON_COLLECTOR_URL etc).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TSMON")
	v.AutomaticEnv()

	v.SetDefault("collector.timeout_seconds", 5)
	v.SetDefault("collector.retry_attempts", 5)
	v.SetDefault("monitoring.interval_seconds", 25)
	v.SetDefault("monitoring.max_failures", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Collector.URL == "" {
		return nil, fmt.Errorf("collector.url is required")
	}
	if cfg.Monitoring.IntervalSeconds < 1 {
		cfg.Monitoring.IntervalSeconds = 25
	}

	return &cfg, nil
}

// SaveAPIKey writes the minted credential back to the config file so the
// next start reuses it instead of re-registering.
func SaveAPIKey(path, apiKey string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config for update: %w", err)
	}
	v.Set("collector.api_key", apiKey)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
