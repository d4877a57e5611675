package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"handoff/internal/constants"
	"handoff/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, cfg map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func minimalConfig() map[string]interface{} {
	return map[string]interface{}{
		"database": map[string]interface{}{"path": "handoff.db"},
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig()))
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, constants.DefaultAIAgentModel, cfg.AIAgent.Model)
	assert.Equal(t, constants.DefaultLeaseAcquireTimeoutMs, cfg.Lease.AcquireTimeoutMs)
	assert.Equal(t, constants.DefaultMisunderstandingThreshold, cfg.Escalation.MisunderstandingThreshold)
	assert.NotEmpty(t, cfg.Escalation.HandoffPhrases)
}

func TestLoadConfigMissingDatabasePath(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, map[string]interface{}{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDBPath)
}

func TestLoadConfigRejectsTraversalPath(t *testing.T) {
	_, err := LoadConfig("../../../etc/config.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadConfigMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HANDOFF_WEBHOOK_SECRET", "env-secret")
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("DB_PATH", "/var/lib/handoff/override.db")

	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig()))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Server.WebhookSecret)
	assert.Equal(t, "env-key", cfg.AIAgent.APIKey)
	assert.Equal(t, "/var/lib/handoff/override.db", cfg.Database.Path)
}

func TestProductionRequiresWebhookSecret(t *testing.T) {
	t.Setenv("HANDOFF_ENV", "production")
	t.Setenv("HANDOFF_WEBHOOK_SECRET", "")

	_, err := LoadConfig(writeConfigFile(t, minimalConfig()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook secret is required in production")
}

func TestProductionRejectsShortSecret(t *testing.T) {
	t.Setenv("HANDOFF_ENV", "production")
	t.Setenv("HANDOFF_WEBHOOK_SECRET", "short")

	_, err := LoadConfig(writeConfigFile(t, minimalConfig()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestProductionRejectsDebugLogging(t *testing.T) {
	t.Setenv("HANDOFF_ENV", "production")
	t.Setenv("HANDOFF_WEBHOOK_SECRET", "0123456789abcdef0123456789abcdef")

	cfg := minimalConfig()
	cfg["log_level"] = "debug"
	_, err := LoadConfig(writeConfigFile(t, cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug logging")
}

func TestTenantEscalationOverrides(t *testing.T) {
	cfg := minimalConfig()
	cfg["escalation"] = map[string]interface{}{
		"tenantOverrides": map[string]interface{}{
			"tenant-1": map[string]interface{}{
				"misunderstandingThreshold": 4,
			},
		},
	}

	loaded, err := LoadConfig(writeConfigFile(t, cfg))
	require.NoError(t, err)

	effective := loaded.Escalation.ForTenant("tenant-1")
	assert.Equal(t, 4, effective.MisunderstandingThreshold)
	assert.NotEmpty(t, effective.HandoffPhrases, "unset override fields fall back to defaults")

	other := loaded.Escalation.ForTenant("tenant-2")
	assert.Equal(t, constants.DefaultMisunderstandingThreshold, other.MisunderstandingThreshold)
}

func TestTenantOverrideNegativeThresholdRejected(t *testing.T) {
	cfg := minimalConfig()
	cfg["escalation"] = map[string]interface{}{
		"tenantOverrides": map[string]interface{}{
			"tenant-1": map[string]interface{}{
				"misunderstandingThreshold": -1,
			},
		},
	}

	_, err := LoadConfig(writeConfigFile(t, cfg))
	require.Error(t, err)
	var cfgErr models.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
