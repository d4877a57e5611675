package service

import (
	"time"

	"handoff/internal/constants"
	"handoff/internal/models"
)

// ResponseTimeTier is the SLA tier for an unanswered customer message.
type ResponseTimeTier string

const (
	ResponseTimeNone    ResponseTimeTier = "none"
	ResponseTimeNormal  ResponseTimeTier = "normal"
	ResponseTimeWarning ResponseTimeTier = "warning"
	ResponseTimeUrgent  ResponseTimeTier = "urgent"
)

// ResponseTimeStatus is surfaced on the query API as an operator signal. It
// never feeds back into control-mode transitions.
type ResponseTimeStatus struct {
	Tier           ResponseTimeTier `json:"tier"`
	MinutesElapsed int              `json:"minutesElapsed,omitempty"`
}

// ClassifyResponseTime derives the SLA tier from the elapsed time since the
// latest customer message. It only applies while the customer is waiting,
// that is while the latest message sender is the customer.
func ClassifyResponseTime(conv *models.Conversation, now time.Time) ResponseTimeStatus {
	if conv.LastSender != models.SenderCustomer || conv.LastCustomerMessageAt == nil {
		return ResponseTimeStatus{Tier: ResponseTimeNone}
	}

	minutes := int(now.Sub(*conv.LastCustomerMessageAt).Minutes())
	switch {
	case minutes < constants.ResponseTimeNormalMinutes:
		return ResponseTimeStatus{Tier: ResponseTimeNone}
	case minutes < constants.ResponseTimeWarningMinutes:
		return ResponseTimeStatus{Tier: ResponseTimeNormal, MinutesElapsed: minutes}
	case minutes < constants.ResponseTimeUrgentMinutes:
		return ResponseTimeStatus{Tier: ResponseTimeWarning, MinutesElapsed: minutes}
	default:
		return ResponseTimeStatus{Tier: ResponseTimeUrgent, MinutesElapsed: minutes}
	}
}
