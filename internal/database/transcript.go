package database

import (
	"context"
	"fmt"
	"time"

	"handoff/internal/models"
)

// AppendTranscript records one message in the conversation's rolling
// transcript. The transcript feeds the handback advisor and read paths; the
// ingestion path never consults it.
func (d *Database) AppendTranscript(ctx context.Context, conversationID string, sender models.Sender, body string, at time.Time) error {
	err := retryableDBOperationNoReturn(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx,
			`INSERT INTO transcript (conversation_id, sender, body, created_at) VALUES (?, ?, ?, ?)`,
			conversationID, sender, body, at)
		return execErr
	}, "append transcript")
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// RecentTranscript returns up to limit most recent transcript entries for a
// conversation in chronological order.
func (d *Database) RecentTranscript(ctx context.Context, conversationID string, limit int) ([]models.TranscriptEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, body, created_at
		 FROM transcript
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.TranscriptEntry
	for rows.Next() {
		var e models.TranscriptEntry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Sender, &e.Body, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript: %w", err)
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
