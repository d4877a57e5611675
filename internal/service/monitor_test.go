package service

import (
	"testing"
	"time"

	"handoff/internal/models"

	"github.com/stretchr/testify/assert"
)

func waitingConversation(elapsed time.Duration) *models.Conversation {
	at := time.Now().UTC().Add(-elapsed)
	return &models.Conversation{
		ID:                    "conv-1",
		ControlMode:           models.ControlModeAuto,
		LastSender:            models.SenderCustomer,
		LastCustomerMessageAt: &at,
	}
}

func TestClassifyResponseTimeTiers(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		tier    ResponseTimeTier
	}{
		{"fresh message", 5 * time.Minute, ResponseTimeNone},
		{"just under normal", 14 * time.Minute, ResponseTimeNone},
		{"normal", 20 * time.Minute, ResponseTimeNormal},
		{"warning at 45 minutes", 45 * time.Minute, ResponseTimeWarning},
		{"warning upper edge", 59 * time.Minute, ResponseTimeWarning},
		{"urgent", 60 * time.Minute, ResponseTimeUrgent},
		{"very overdue", 3 * time.Hour, ResponseTimeUrgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := waitingConversation(tt.elapsed)
			now := time.Now().UTC()
			status := ClassifyResponseTime(conv, now)
			assert.Equal(t, tt.tier, status.Tier)
			if tt.tier != ResponseTimeNone {
				assert.InDelta(t, int(tt.elapsed.Minutes()), status.MinutesElapsed, 1)
			}
		})
	}
}

func TestClassifyOnlyWhileCustomerWaits(t *testing.T) {
	conv := waitingConversation(45 * time.Minute)
	conv.LastSender = models.SenderAI

	status := ClassifyResponseTime(conv, time.Now().UTC())
	assert.Equal(t, ResponseTimeNone, status.Tier)

	conv.LastSender = models.SenderAgent
	status = ClassifyResponseTime(conv, time.Now().UTC())
	assert.Equal(t, ResponseTimeNone, status.Tier)
}

func TestClassifyWithoutCustomerMessage(t *testing.T) {
	conv := &models.Conversation{ID: "conv-1", LastSender: models.SenderCustomer}
	status := ClassifyResponseTime(conv, time.Now().UTC())
	assert.Equal(t, ResponseTimeNone, status.Tier)
}
