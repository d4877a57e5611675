package service

import (
	"context"
	"time"

	"handoff/internal/models"
	"handoff/pkg/aiagent"
	"handoff/pkg/notify"
)

// ConversationStore is the persistence surface the engine mutates. All
// conversation writes happen here, under the per-conversation lease.
type ConversationStore interface {
	AdmitMessage(ctx context.Context, providerMessageID string) (bool, error)
	ForgetMessage(ctx context.Context, providerMessageID string) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetOrCreateConversation(ctx context.Context, key models.ConversationKey, id string, now time.Time) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversations(ctx context.Context, filter models.ConversationFilter) ([]*models.Conversation, error)
	ArchiveConversation(ctx context.Context, id string, now time.Time) error
	AppendTranscript(ctx context.Context, conversationID string, sender models.Sender, body string, at time.Time) error
	RecentTranscript(ctx context.Context, conversationID string, limit int) ([]models.TranscriptEntry, error)
}

// AIResponder is the external AI collaborator. It generates customer replies
// and summarizes conversations; it never owns conversation state.
type AIResponder interface {
	GenerateReply(ctx context.Context, history []aiagent.TranscriptMessage, customerMessage string) (*aiagent.Reply, error)
	SummarizeForHandback(ctx context.Context, history []aiagent.TranscriptMessage) (*aiagent.HandbackAssessment, error)
}

// Notifier delivers operator and customer notifications. Delivery failures
// are never fatal to a state transition.
type Notifier interface {
	NotifyOperators(ctx context.Context, event notify.OperatorEvent) error
	NotifyCustomer(ctx context.Context, msg notify.CustomerMessage) error
}

// RecordCleaner is the retention surface the cleanup scheduler drives.
type RecordCleaner interface {
	CleanupOldRecords(retentionDays int) error
}
