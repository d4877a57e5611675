package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"handoff/internal/models"
)

// AdmitMessage records a provider message ID and reports whether this call
// was the first to see it. The INSERT with ON CONFLICT DO NOTHING is a single
// atomic check-and-set: under concurrent delivery of the same ID exactly one
// caller observes admitted=true. A look-up-then-insert here would be a race.
func (d *Database) AdmitMessage(ctx context.Context, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return false, fmt.Errorf("empty provider message id")
	}

	var admitted bool
	err := retryableDBOperationNoReturn(ctx, func() error {
		result, execErr := d.db.ExecContext(ctx,
			`INSERT INTO dedup (provider_message_id, first_seen_at) VALUES (?, ?)
			 ON CONFLICT(provider_message_id) DO NOTHING`,
			providerMessageID, time.Now().UTC())
		if execErr != nil {
			return execErr
		}
		rows, raErr := result.RowsAffected()
		if raErr != nil {
			return raErr
		}
		admitted = rows > 0
		return nil
	}, "admit message")
	if err != nil {
		return false, fmt.Errorf("failed to admit message: %w", err)
	}
	return admitted, nil
}

// ForgetMessage removes a previously admitted provider message ID so the
// delivery can be admitted again. Used when ingestion fails after admission:
// leaving the key in place would make the provider's retry look like a
// duplicate and the message would be lost.
func (d *Database) ForgetMessage(ctx context.Context, providerMessageID string) error {
	err := retryableDBOperationNoReturn(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx,
			`DELETE FROM dedup WHERE provider_message_id = ?`, providerMessageID)
		return execErr
	}, "forget message")
	if err != nil {
		return fmt.Errorf("failed to forget message: %w", err)
	}
	return nil
}

// GetDedupRecord returns the dedup row for a provider message ID, or nil.
func (d *Database) GetDedupRecord(ctx context.Context, providerMessageID string) (*models.DedupRecord, error) {
	record := &models.DedupRecord{}
	err := d.db.QueryRowContext(ctx,
		`SELECT provider_message_id, first_seen_at FROM dedup WHERE provider_message_id = ?`,
		providerMessageID).Scan(&record.ProviderMessageID, &record.FirstSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dedup record: %w", err)
	}
	return record, nil
}

// CleanupOldRecords expires dedup keys and transcript rows older than the
// retention window. Retention must exceed the longest provider redelivery
// window so an expired key cannot be re-admitted while redelivery is
// still possible.
func (d *Database) CleanupOldRecords(retentionDays int) error {
	if _, err := d.db.Exec(
		`DELETE FROM dedup WHERE first_seen_at < datetime('now', '-' || ? || ' days')`,
		retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup dedup records: %w", err)
	}

	if _, err := d.db.Exec(
		`DELETE FROM transcript WHERE created_at < datetime('now', '-' || ? || ' days')`,
		retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup transcript records: %w", err)
	}

	return nil
}
