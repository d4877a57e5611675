package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"handoff/internal/migrations"
	"handoff/internal/models"
	"handoff/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the durable store for conversations, dedup admissions and the
// rolling transcript. Conversation rows are only written by the engine while
// it holds the conversation's lease.
type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

// NewInMemory opens an in-memory database for tests.
func NewInMemory() (*Database, error) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

const conversationColumns = `
	id, tenant_id, channel, customer_handle, control_mode,
	needs_human_attention, assigned_agent, consecutive_misses, last_sender,
	last_customer_message_at, last_handoff_at, manual_mode_started_at,
	archived, created_at, updated_at`

func scanConversation(row interface{ Scan(...interface{}) error }) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := row.Scan(
		&conv.ID,
		&conv.TenantID,
		&conv.Channel,
		&conv.CustomerHandle,
		&conv.ControlMode,
		&conv.NeedsHumanAttention,
		&conv.AssignedAgent,
		&conv.ConsecutiveMisses,
		&conv.LastSender,
		&conv.LastCustomerMessageAt,
		&conv.LastHandoffAt,
		&conv.ManualModeStartedAt,
		&conv.Archived,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID, or nil if absent.
func (d *Database) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	return scanConversation(d.db.QueryRowContext(ctx, query, id))
}

// GetConversationByKey retrieves a conversation by its (tenant, channel,
// customer handle) key, or nil if absent.
func (d *Database) GetConversationByKey(ctx context.Context, key models.ConversationKey) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = ? AND channel = ? AND customer_handle = ?`
	return scanConversation(d.db.QueryRowContext(ctx, query, key.TenantID, key.Channel, key.CustomerHandle))
}

// CreateConversation inserts a new conversation row. The caller supplies the
// ID; a concurrent insert for the same key loses on the unique constraint,
// in which case the caller re-reads by key.
func (d *Database) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query := `
		INSERT INTO conversations (
			id, tenant_id, channel, customer_handle, control_mode,
			needs_human_attention, assigned_agent, consecutive_misses, last_sender,
			last_customer_message_at, last_handoff_at, manual_mode_started_at,
			archived, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := retryableDBOperationNoReturn(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, query,
			conv.ID, conv.TenantID, conv.Channel, conv.CustomerHandle, conv.ControlMode,
			conv.NeedsHumanAttention, conv.AssignedAgent, conv.ConsecutiveMisses, conv.LastSender,
			conv.LastCustomerMessageAt, conv.LastHandoffAt, conv.ManualModeStartedAt,
			conv.Archived, conv.CreatedAt, conv.UpdatedAt,
		)
		return execErr
	}, "create conversation")
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetOrCreateConversation resolves the conversation for an inbound message,
// creating it on first contact for a customer/channel pair.
func (d *Database) GetOrCreateConversation(ctx context.Context, key models.ConversationKey, id string, now time.Time) (*models.Conversation, error) {
	conv, err := d.GetConversationByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &models.Conversation{
		ID:             id,
		TenantID:       key.TenantID,
		Channel:        key.Channel,
		CustomerHandle: key.CustomerHandle,
		ControlMode:    models.ControlModeAuto,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.CreateConversation(ctx, conv); err != nil {
		// Lost a create race; the other writer's row is authoritative.
		existing, getErr := d.GetConversationByKey(ctx, key)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return conv, nil
}

// UpdateConversation writes the full mutable state of a conversation row.
// Only the engine calls this, while holding the conversation's lease.
func (d *Database) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	query := `
		UPDATE conversations SET
			control_mode = ?,
			needs_human_attention = ?,
			assigned_agent = ?,
			consecutive_misses = ?,
			last_sender = ?,
			last_customer_message_at = ?,
			last_handoff_at = ?,
			manual_mode_started_at = ?,
			archived = ?,
			updated_at = ?
		WHERE id = ?
	`
	err := retryableDBOperationNoReturn(ctx, func() error {
		result, execErr := d.db.ExecContext(ctx, query,
			conv.ControlMode,
			conv.NeedsHumanAttention,
			conv.AssignedAgent,
			conv.ConsecutiveMisses,
			conv.LastSender,
			conv.LastCustomerMessageAt,
			conv.LastHandoffAt,
			conv.ManualModeStartedAt,
			conv.Archived,
			conv.UpdatedAt,
			conv.ID,
		)
		if execErr != nil {
			return execErr
		}
		rows, raErr := result.RowsAffected()
		if raErr != nil {
			return raErr
		}
		if rows == 0 {
			return fmt.Errorf("no conversation with id: %s", conv.ID)
		}
		return nil
	}, "update conversation")
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// ListConversations returns conversations matching the filter, most recently
// updated first.
func (d *Database) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	args := []interface{}{}

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.ControlMode != "" {
		query += ` AND control_mode = ?`
		args = append(args, filter.ControlMode)
	}
	if filter.NeedsAttention != nil {
		query += ` AND needs_human_attention = ?`
		args = append(args, *filter.NeedsAttention)
	}
	if !filter.IncludeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY updated_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []*models.Conversation
	for rows.Next() {
		conv, scanErr := scanConversation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return conversations, nil
}

// ArchiveConversation soft-deletes a conversation. Rows are never hard
// deleted.
func (d *Database) ArchiveConversation(ctx context.Context, id string, now time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE conversations SET archived = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no conversation with id: %s", id)
	}
	return nil
}
