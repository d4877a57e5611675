package models

import "time"

// InboundMessage is the canonical form of a channel webhook payload. It is
// ephemeral: only the provider message ID survives ingestion (as the dedup
// key) plus a transcript row for the advisor's history.
type InboundMessage struct {
	ProviderMessageID string
	Key               ConversationKey
	Body              string
	Sender            Sender
	ReceivedAt        time.Time
}

// DedupRecord mirrors one row of the dedup table.
type DedupRecord struct {
	ProviderMessageID string    `db:"provider_message_id"`
	FirstSeenAt       time.Time `db:"first_seen_at"`
}

// TranscriptEntry is one message of a conversation's rolling transcript,
// kept for the handback advisor and read paths only.
type TranscriptEntry struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	Sender         Sender    `db:"sender" json:"sender"`
	Body           string    `db:"body" json:"body"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
