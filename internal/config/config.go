package config

import (
	"encoding/json"
	"fmt"
	"os"

	"handoff/internal/constants"
	"handoff/internal/models"
	"handoff/internal/security"
)

var (
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
	ErrMissingAIAgentURL = models.ConfigError{Message: "missing AI agent base URL"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.CleanupIntervalHours <= 0 {
		c.Server.CleanupIntervalHours = constants.CleanupSchedulerIntervalHours
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}

	if c.AIAgent.Model == "" {
		c.AIAgent.Model = constants.DefaultAIAgentModel
	}
	if c.AIAgent.TimeoutSec <= 0 {
		c.AIAgent.TimeoutSec = constants.DefaultAIAgentTimeoutSec
	}
	if c.AIAgent.MaxTokens <= 0 {
		c.AIAgent.MaxTokens = constants.DefaultAIAgentMaxTokens
	}
	if c.AIAgent.Temperature <= 0 {
		c.AIAgent.Temperature = constants.DefaultAIAgentTemperature
	}
	if c.AIAgent.BreakerMaxFail <= 0 {
		c.AIAgent.BreakerMaxFail = constants.DefaultBreakerMaxFailures
	}
	if c.AIAgent.BreakerResetSec <= 0 {
		c.AIAgent.BreakerResetSec = constants.DefaultBreakerResetSec
	}

	if c.Notify.TimeoutSec <= 0 {
		c.Notify.TimeoutSec = constants.DefaultNotifyTimeoutSec
	}

	if c.Lease.AcquireTimeoutMs <= 0 {
		c.Lease.AcquireTimeoutMs = constants.DefaultLeaseAcquireTimeoutMs
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	applyEscalationDefaults(&c.Escalation)
	for tenant, override := range c.Escalation.TenantOverrides {
		if override.MisunderstandingThreshold < 0 {
			return models.ConfigError{Message: fmt.Sprintf("negative misunderstanding threshold for tenant %s", tenant)}
		}
	}

	return nil
}

func applyEscalationDefaults(e *models.EscalationConfig) {
	if len(e.HandoffPhrases) == 0 {
		e.HandoffPhrases = constants.DefaultHandoffPhrases
	}
	if len(e.UrgencyKeywords) == 0 {
		e.UrgencyKeywords = constants.DefaultUrgencyKeywords
	}
	if len(e.QuoteKeywords) == 0 {
		e.QuoteKeywords = constants.DefaultQuoteKeywords
	}
	if e.MisunderstandingThreshold <= 0 {
		e.MisunderstandingThreshold = constants.DefaultMisunderstandingThreshold
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	// SECURITY: webhook secret and AI key come from the environment, never
	// from the config file on disk.
	if secret := os.Getenv("HANDOFF_WEBHOOK_SECRET"); secret != "" {
		c.Server.WebhookSecret = secret
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.AIAgent.APIKey = key
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if url := os.Getenv("HANDOFF_OPERATOR_WEBHOOK_URL"); url != "" {
		c.Notify.OperatorWebhookURL = url
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("HANDOFF_ENV") == "production"

	if isProduction {
		if c.Server.WebhookSecret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set HANDOFF_WEBHOOK_SECRET environment variable)"}
		}
		if len(c.Server.WebhookSecret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if c.Server.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set HANDOFF_WEBHOOK_SECRET environment variable for security.\n")
		}
	}

	return nil
}
