package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SCRAPER_MAX_REQUESTS_PER_MINUTE or SCRAPER_PROXY_CONFIG_TYPE.
const EnvPrefix = "SCRAPER"

// fileConfig mirrors the on-disk configuration surface. Durations are
// expressed in seconds there, so they are converted after decoding.
type fileConfig struct {
	BaseURL              string  `mapstructure:"base_url"`
	MaxPages             int     `mapstructure:"max_pages"`
	MaxRequestsPerMinute int     `mapstructure:"max_requests_per_minute"`
	TimeoutSeconds       float64 `mapstructure:"timeout_seconds"`
	MaxRetries           int     `mapstructure:"max_retries"`
	SessionResetAfter    int     `mapstructure:"session_reset_after"`

	DelayMin          float64 `mapstructure:"delay_min"`
	DelayMax          float64 `mapstructure:"delay_max"`
	UseAdaptiveDelay  bool    `mapstructure:"use_adaptive_delay"`
	BackoffFactor     float64 `mapstructure:"backoff_factor"`
	MaxBackoffSeconds float64 `mapstructure:"max_backoff_seconds"`
	LongPauseSeconds  float64 `mapstructure:"long_pause_seconds"`

	EnableProxy bool `mapstructure:"enable_proxy"`
	ProxyConfig struct {
		Type        string   `mapstructure:"type"`
		List        []string `mapstructure:"list"`
		ServiceName string   `mapstructure:"service_name"`
		APIKey      string   `mapstructure:"api_key"`
		Username    string   `mapstructure:"username"`
		Endpoint    string   `mapstructure:"endpoint"`
	} `mapstructure:"proxy_config"`

	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	CacheBackend    string `mapstructure:"cache_backend"`
	CacheFile       string `mapstructure:"cache_file"`
	CacheMaxEntries int    `mapstructure:"cache_max_entries"`
	CacheSaveEvery  int    `mapstructure:"cache_save_every"`
	RedisAddr       string `mapstructure:"redis_addr"`

	SchedulerEnabled    bool    `mapstructure:"scheduler_enabled"`
	TaskBackend         string  `mapstructure:"task_backend"`
	TasksFile           string  `mapstructure:"tasks_file"`
	PostgresURL         string  `mapstructure:"postgres_url"`
	PollIntervalSeconds float64 `mapstructure:"poll_interval_seconds"`

	LowTrafficHours struct {
		Start int `mapstructure:"start"`
		End   int `mapstructure:"end"`
	} `mapstructure:"low_traffic_hours"`
	LowTrafficBoost float64 `mapstructure:"low_traffic_boost"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	LogFile     string `mapstructure:"log_file"`
	Verbose     bool   `mapstructure:"verbose"`
}

// Load builds a Config from defaults, an optional config file and SCRAPER_*
// environment variables, in increasing order of precedence. When path is
// empty a "scraper.{yaml,json,toml}" file in the working directory is used
// if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("scraper")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg := fc.toConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("max_requests_per_minute", d.MaxRequestsPerMinute)
	v.SetDefault("timeout_seconds", d.Timeout.Seconds())
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("session_reset_after", d.SessionResetAfter)

	v.SetDefault("delay_min", d.DelayMin.Seconds())
	v.SetDefault("delay_max", d.DelayMax.Seconds())
	v.SetDefault("use_adaptive_delay", d.UseAdaptiveDelay)
	v.SetDefault("backoff_factor", d.BackoffFactor)
	v.SetDefault("max_backoff_seconds", d.MaxBackoff.Seconds())
	v.SetDefault("long_pause_seconds", d.LongPause.Seconds())

	v.SetDefault("enable_proxy", d.EnableProxy)
	v.SetDefault("proxy_config.type", d.Proxy.Type)
	v.SetDefault("proxy_config.list", d.Proxy.List)
	v.SetDefault("proxy_config.service_name", d.Proxy.ServiceName)
	v.SetDefault("proxy_config.api_key", d.Proxy.APIKey)
	v.SetDefault("proxy_config.username", d.Proxy.Username)
	v.SetDefault("proxy_config.endpoint", d.Proxy.Endpoint)

	v.SetDefault("cache_ttl_seconds", int(d.CacheTTL.Seconds()))
	v.SetDefault("cache_backend", d.CacheBackend)
	v.SetDefault("cache_file", d.CacheFile)
	v.SetDefault("cache_max_entries", d.CacheMaxEntries)
	v.SetDefault("cache_save_every", d.CacheSaveEvery)
	v.SetDefault("redis_addr", d.RedisAddr)

	v.SetDefault("scheduler_enabled", d.SchedulerEnabled)
	v.SetDefault("task_backend", d.TaskBackend)
	v.SetDefault("tasks_file", d.TasksFile)
	v.SetDefault("postgres_url", d.PostgresURL)
	v.SetDefault("poll_interval_seconds", d.PollInterval.Seconds())

	v.SetDefault("low_traffic_hours.start", d.LowTraffic.Start)
	v.SetDefault("low_traffic_hours.end", d.LowTraffic.End)
	v.SetDefault("low_traffic_boost", d.LowTrafficBoost)

	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("verbose", d.Verbose)
}

func (fc fileConfig) toConfig() *Config {
	return &Config{
		BaseURL:              strings.TrimRight(fc.BaseURL, "/"),
		MaxPages:             fc.MaxPages,
		MaxRequestsPerMinute: fc.MaxRequestsPerMinute,
		Timeout:              seconds(fc.TimeoutSeconds),
		MaxRetries:           fc.MaxRetries,
		SessionResetAfter:    fc.SessionResetAfter,
		DelayMin:             seconds(fc.DelayMin),
		DelayMax:             seconds(fc.DelayMax),
		UseAdaptiveDelay:     fc.UseAdaptiveDelay,
		BackoffFactor:        fc.BackoffFactor,
		MaxBackoff:           seconds(fc.MaxBackoffSeconds),
		LongPause:            seconds(fc.LongPauseSeconds),
		EnableProxy:          fc.EnableProxy,
		Proxy: ProxyConfig{
			Type:        strings.ToLower(fc.ProxyConfig.Type),
			List:        fc.ProxyConfig.List,
			ServiceName: strings.ToLower(fc.ProxyConfig.ServiceName),
			APIKey:      fc.ProxyConfig.APIKey,
			Username:    fc.ProxyConfig.Username,
			Endpoint:    fc.ProxyConfig.Endpoint,
		},
		CacheTTL:         time.Duration(fc.CacheTTLSeconds) * time.Second,
		CacheBackend:     strings.ToLower(fc.CacheBackend),
		CacheFile:        fc.CacheFile,
		CacheMaxEntries:  fc.CacheMaxEntries,
		CacheSaveEvery:   fc.CacheSaveEvery,
		RedisAddr:        fc.RedisAddr,
		SchedulerEnabled: fc.SchedulerEnabled,
		TaskBackend:      strings.ToLower(fc.TaskBackend),
		TasksFile:        fc.TasksFile,
		PostgresURL:      fc.PostgresURL,
		PollInterval:     seconds(fc.PollIntervalSeconds),
		LowTraffic: LowTrafficHours{
			Start: fc.LowTrafficHours.Start,
			End:   fc.LowTrafficHours.End,
		},
		LowTrafficBoost: fc.LowTrafficBoost,
		MetricsAddr:     fc.MetricsAddr,
		LogFile:         fc.LogFile,
		Verbose:         fc.Verbose,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
