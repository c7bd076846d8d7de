package models

// Config holds the application configuration
type Config struct {
	Server          ServerConfig    `json:"server"`
	Database        DatabaseConfig  `json:"database"`
	Reconcile       ReconcileConfig `json:"reconcile"`
	SecondHop       SecondHopConfig `json:"second_hop"`
	Tracing         TracingConfig   `json:"tracing"`
	Retry           RetryConfig     `json:"retry"`
	TenantsFile     string          `json:"tenants_file"`
	DefaultMaxItems int             `json:"default_max_items"`
	DefaultTimeout  int             `json:"default_timeout_sec"`
	LogLevel        string          `json:"log_level"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"read_timeout_sec"`
	WriteTimeoutSec int `json:"write_timeout_sec"`
	IdleTimeoutSec  int `json:"idle_timeout_sec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ReconcileConfig controls the background retry sweep
type ReconcileConfig struct {
	Enabled        bool   `json:"enabled"`
	Schedule       string `json:"schedule"`
	ProbeOnStartup bool   `json:"probe_on_startup"`
}

// SecondHopConfig controls the relay-to-relay webhook
type SecondHopConfig struct {
	StripPrefix string `json:"strip_prefix"`
}

// TracingConfig mirrors tracing.TracingConfig for JSON loading
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
