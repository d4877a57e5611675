package constants

// Default retry and retention values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultRetentionDays         = 30
	DefaultServerPort            = 8084
	DefaultDatabaseRetryAttempts = 3
)

// Default timeout values
const (
	DefaultGracefulShutdownSec    = 30
	DefaultServerReadTimeoutSec   = 15
	DefaultServerWriteTimeoutSec  = 15
	DefaultServerIdleTimeoutSec   = 60
	DefaultAIAgentTimeoutSec      = 30
	DefaultNotifyTimeoutSec       = 10
	DefaultLeaseAcquireTimeoutMs  = 2000
	CleanupSchedulerIntervalHours = 24
	ServerErrorChannelSize        = 1
)

// Escalation defaults. The misunderstanding threshold and keyword lists are
// tenant-tunable; these are the shipped defaults.
const (
	DefaultMisunderstandingThreshold = 2
)

var (
	DefaultHandoffPhrases = []string{
		"talk to a person",
		"talk to a human",
		"speak to a person",
		"speak to a human",
		"real person",
		"human agent",
		"live agent",
		"speak with someone",
		"talk to someone",
	}

	DefaultUrgencyKeywords = []string{
		"urgent",
		"emergency",
		"asap",
		"immediately",
		"right now",
		"frustrated",
		"angry",
		"ridiculous",
		"unacceptable",
		"terrible",
	}

	DefaultQuoteKeywords = []string{
		"custom quote",
		"custom order",
		"special request",
		"bulk order",
		"estimate for",
		"not on your website",
		"not listed",
	}
)

// Response-time SLA tier boundaries in minutes, measured from the latest
// customer message.
const (
	ResponseTimeNormalMinutes  = 15
	ResponseTimeWarningMinutes = 30
	ResponseTimeUrgentMinutes  = 60
)

// AI agent defaults
const (
	DefaultAIAgentModel       = "gpt-4o-mini"
	DefaultAIAgentMaxTokens   = 1024
	DefaultAIAgentTemperature = 0.3
	DefaultBreakerMaxFailures = 5
	DefaultBreakerResetSec    = 60
)

// Transcript handling
const (
	DefaultTranscriptWindow = 50
	DefaultMaxBodyBytes     = 64 * 1024
)

// Privacy settings
const (
	DefaultHandleMaskLength = 4
)
