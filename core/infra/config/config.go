package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultHTTPAddr       = ":9094"
	defaultNATSURL        = ""
	defaultRedisURL       = ""
	defaultEventSubject   = "weft.workflow"
	defaultEventChannel   = "weft:workflow:events"
	defaultHistoryLimit   = 100
	defaultAgentCacheSize = 10

	envHTTPAddr        = "WEFT_HTTP_ADDR"
	envNATSURL         = "NATS_URL"
	envRedisURL        = "REDIS_URL"
	envEventSubject    = "WEFT_EVENT_SUBJECT"
	envEventChannel    = "WEFT_EVENT_CHANNEL"
	envHistoryLimit    = "WEFT_HISTORY_LIMIT"
	envAgentCacheSize  = "WEFT_AGENT_CACHE_SIZE"
	envDefaultTimeout  = "WEFT_DEFAULT_TIMEOUT"
	envWorkflowFile    = "WEFT_WORKFLOW_FILE"
	envMetricNamespace = "WEFT_METRIC_NAMESPACE"
)

// Config holds runtime configuration for the orchestrator daemon.
type Config struct {
	HTTPAddr        string
	NatsURL         string // empty disables the NATS event sink
	RedisURL        string // empty disables the Redis event sink
	EventSubject    string
	EventChannel    string
	HistoryLimit    int
	AgentCacheSize  int
	DefaultTimeout  time.Duration // zero means no workflow deadline
	WorkflowFile    string        // optional definition to smoke-run at startup
	MetricNamespace string
}

// Load returns configuration from environment variables with sane defaults.
func Load() *Config {
	cfg := &Config{
		HTTPAddr:        getenv(envHTTPAddr, defaultHTTPAddr),
		NatsURL:         getenv(envNATSURL, defaultNATSURL),
		RedisURL:        getenv(envRedisURL, defaultRedisURL),
		EventSubject:    getenv(envEventSubject, defaultEventSubject),
		EventChannel:    getenv(envEventChannel, defaultEventChannel),
		HistoryLimit:    getenvInt(envHistoryLimit, defaultHistoryLimit),
		AgentCacheSize:  getenvInt(envAgentCacheSize, defaultAgentCacheSize),
		WorkflowFile:    os.Getenv(envWorkflowFile),
		MetricNamespace: getenv(envMetricNamespace, "weft"),
	}
	if v := os.Getenv(envDefaultTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.DefaultTimeout = d
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
