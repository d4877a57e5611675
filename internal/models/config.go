package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig     `json:"server"`
	Database      DatabaseConfig   `json:"database"`
	AIAgent       AIAgentConfig    `json:"aiAgent"`
	Notify        NotifyConfig     `json:"notify"`
	Escalation    EscalationConfig `json:"escalation"`
	Lease         LeaseConfig      `json:"lease"`
	Retry         RetryConfig      `json:"retry"`
	Tracing       TracingConfig    `json:"tracing"`
	LogLevel      string           `json:"log_level"`
	RetentionDays int              `json:"retentionDays"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                 int    `json:"port"`
	ReadTimeoutSec       int    `json:"readTimeoutSec"`
	WriteTimeoutSec      int    `json:"writeTimeoutSec"`
	IdleTimeoutSec       int    `json:"idleTimeoutSec"`
	WebhookSecret        string `json:"webhook_secret"`
	CleanupIntervalHours int    `json:"cleanupIntervalHours"`
}

// DatabaseConfig holds database related configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// AIAgentConfig configures the external AI collaborator used for reply
// generation and handback summarization.
type AIAgentConfig struct {
	APIKey          string  `json:"-"` // environment only, never from file
	BaseURL         string  `json:"base_url"`
	Model           string  `json:"model"`
	TimeoutSec      int     `json:"timeoutSec"`
	MaxTokens       int     `json:"maxTokens"`
	Temperature     float64 `json:"temperature"`
	BreakerMaxFail  int     `json:"breakerMaxFailures"`
	BreakerResetSec int     `json:"breakerResetSec"`
}

// NotifyConfig configures operator/customer notification delivery.
type NotifyConfig struct {
	OperatorWebhookURL string `json:"operatorWebhookUrl"`
	CustomerWebhookURL string `json:"customerWebhookUrl"`
	TimeoutSec         int    `json:"timeoutSec"`
}

// EscalationConfig holds the escalation evaluator's tunables. Tenant
// overrides shadow the top-level defaults per tenant ID.
type EscalationConfig struct {
	HandoffPhrases            []string                    `json:"handoffPhrases"`
	UrgencyKeywords           []string                    `json:"urgencyKeywords"`
	QuoteKeywords             []string                    `json:"quoteKeywords"`
	MisunderstandingThreshold int                         `json:"misunderstandingThreshold"`
	TenantOverrides           map[string]EscalationConfig `json:"tenantOverrides,omitempty"`
}

// ForTenant resolves the effective escalation settings for a tenant.
// Override fields left empty fall back to the defaults.
func (c EscalationConfig) ForTenant(tenantID string) EscalationConfig {
	override, ok := c.TenantOverrides[tenantID]
	if !ok {
		return c
	}
	effective := c
	effective.TenantOverrides = nil
	if len(override.HandoffPhrases) > 0 {
		effective.HandoffPhrases = override.HandoffPhrases
	}
	if len(override.UrgencyKeywords) > 0 {
		effective.UrgencyKeywords = override.UrgencyKeywords
	}
	if len(override.QuoteKeywords) > 0 {
		effective.QuoteKeywords = override.QuoteKeywords
	}
	if override.MisunderstandingThreshold > 0 {
		effective.MisunderstandingThreshold = override.MisunderstandingThreshold
	}
	return effective
}

// LeaseConfig bounds per-conversation lease acquisition.
type LeaseConfig struct {
	AcquireTimeoutMs int `json:"acquireTimeoutMs"`
}

// RetryConfig holds retry/backoff configuration
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
