package config

import (
	"fmt"
	"net/url"
	"time"
)

// Proxy source types accepted in ProxyConfig.Type.
const (
	ProxyNone    = "none"
	ProxyList    = "list"
	ProxyService = "service"
)

// ProxyConfig describes where outbound proxy paths come from.
type ProxyConfig struct {
	Type        string
	List        []string
	ServiceName string
	APIKey      string
	Username    string
	Endpoint    string
}

// LowTrafficHours is the daily window, in local hours, during which request
// limits are relaxed. Start == End disables the window.
type LowTrafficHours struct {
	Start int
	End   int
}

// Config holds every setting consumed by the fetch layer and its collaborators.
// It is built once and passed into constructors.
type Config struct {
	BaseURL  string
	MaxPages int

	MaxRequestsPerMinute int
	Timeout              time.Duration
	MaxRetries           int
	SessionResetAfter    int

	DelayMin         time.Duration
	DelayMax         time.Duration
	UseAdaptiveDelay bool
	BackoffFactor    float64
	MaxBackoff       time.Duration
	LongPause        time.Duration

	EnableProxy bool
	Proxy       ProxyConfig

	CacheTTL        time.Duration
	CacheBackend    string // file or redis
	CacheFile       string
	CacheMaxEntries int
	CacheSaveEvery  int
	RedisAddr       string

	SchedulerEnabled bool
	TaskBackend      string // file or postgres
	TasksFile        string
	PostgresURL      string
	PollInterval     time.Duration

	LowTraffic      LowTrafficHours
	LowTrafficBoost float64

	MetricsAddr string
	LogFile     string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the target marketplace.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              "https://listado.mercadolibre.com.ar",
		MaxPages:             5,
		MaxRequestsPerMinute: 20,
		Timeout:              15 * time.Second,
		MaxRetries:           2,
		SessionResetAfter:    50,
		DelayMin:             2 * time.Second,
		DelayMax:             5 * time.Second,
		UseAdaptiveDelay:     true,
		BackoffFactor:        1.5,
		MaxBackoff:           60 * time.Second,
		LongPause:            5 * time.Minute,
		Proxy:                ProxyConfig{Type: ProxyNone},
		CacheTTL:             time.Hour,
		CacheBackend:         "file",
		CacheFile:            "data/cache.json",
		CacheMaxEntries:      5000,
		CacheSaveEvery:       10,
		RedisAddr:            "localhost:6379",
		SchedulerEnabled:     true,
		TaskBackend:          "file",
		TasksFile:            "data/scheduled_tasks.json",
		PollInterval:         time.Minute,
		LowTraffic:           LowTrafficHours{Start: 1, End: 6},
		LowTrafficBoost:      1.5,
		MetricsAddr:          ":9090",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("max requests per minute must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.SessionResetAfter < 0 {
		return fmt.Errorf("session reset after cannot be negative")
	}
	if c.DelayMin < 0 || c.DelayMax < 0 {
		return fmt.Errorf("delay bounds cannot be negative")
	}
	if c.DelayMin > c.DelayMax {
		return fmt.Errorf("delay min (%s) cannot exceed delay max (%s)", c.DelayMin, c.DelayMax)
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be at least 1")
	}
	if c.MaxBackoff < c.DelayMax {
		return fmt.Errorf("max backoff (%s) cannot be below delay max (%s)", c.MaxBackoff, c.DelayMax)
	}
	if c.LongPause < 0 {
		return fmt.Errorf("long pause cannot be negative")
	}

	if c.EnableProxy {
		switch c.Proxy.Type {
		case ProxyNone, "":
		case ProxyList:
			if len(c.Proxy.List) == 0 {
				return fmt.Errorf("proxy list cannot be empty when proxy type is list")
			}
		case ProxyService:
			if c.Proxy.ServiceName == "" && c.Proxy.Endpoint == "" {
				return fmt.Errorf("proxy service requires a service name or endpoint")
			}
		default:
			return fmt.Errorf("proxy type must be none, list, or service")
		}
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	switch c.CacheBackend {
	case "file":
		if c.CacheFile == "" {
			return fmt.Errorf("cache file cannot be empty")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	default:
		return fmt.Errorf("cache backend must be file or redis")
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	if c.CacheSaveEvery <= 0 {
		return fmt.Errorf("cache save interval must be positive")
	}

	switch c.TaskBackend {
	case "file":
		if c.TasksFile == "" {
			return fmt.Errorf("tasks file cannot be empty")
		}
	case "postgres":
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres url cannot be empty")
		}
	default:
		return fmt.Errorf("task backend must be file or postgres")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if !validHour(c.LowTraffic.Start) || !validHour(c.LowTraffic.End) {
		return fmt.Errorf("low traffic hours must be within 0-23")
	}
	if c.LowTrafficBoost < 1 {
		return fmt.Errorf("low traffic boost must be at least 1")
	}

	return nil
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
