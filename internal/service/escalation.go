package service

import (
	"strings"

	"handoff/internal/models"
)

// EscalationReason identifies which trigger escalated a conversation. It is
// attached to the transition's side effects for audit and notification text.
type EscalationReason string

const (
	ReasonExplicitRequest          EscalationReason = "explicit_request"
	ReasonRepeatedMisunderstanding EscalationReason = "repeated_misunderstanding"
	ReasonUrgencyKeyword           EscalationReason = "urgency_keyword"
	ReasonCustomQuote              EscalationReason = "custom_quote"
)

// EvaluateEscalation scores an inbound message against the tenant's
// escalation triggers. Pure: no store or network access. Triggers are
// checked in priority order and the first match wins; anything below
// threshold stays in auto, no guessing.
func EvaluateEscalation(body string, consecutiveMisses int, cfg models.EscalationConfig) (bool, EscalationReason) {
	lower := strings.ToLower(body)

	if matchesAny(lower, cfg.HandoffPhrases) {
		return true, ReasonExplicitRequest
	}
	if cfg.MisunderstandingThreshold > 0 && consecutiveMisses >= cfg.MisunderstandingThreshold {
		return true, ReasonRepeatedMisunderstanding
	}
	if matchesAny(lower, cfg.UrgencyKeywords) {
		return true, ReasonUrgencyKeyword
	}
	if matchesAny(lower, cfg.QuoteKeywords) {
		return true, ReasonCustomQuote
	}
	return false, ""
}

func matchesAny(lowerBody string, phrases []string) bool {
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if strings.Contains(lowerBody, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
