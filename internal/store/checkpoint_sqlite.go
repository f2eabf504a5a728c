package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/leadreach/internal/domain"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// SQLiteCheckpointer implements Checkpointer on top of DB.
type SQLiteCheckpointer struct {
	db *DB
}

// NewSQLiteCheckpointer creates a checkpointer using the given database.
func NewSQLiteCheckpointer(db *DB) *SQLiteCheckpointer {
	return &SQLiteCheckpointer{db: db}
}

func (s *SQLiteCheckpointer) Load(ctx context.Context, threadID string) (*domain.Conversation, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	conv, err := loadConversation(ctx, tx, threadID)
	if err != nil {
		return nil, err
	}
	if err := loadMessages(ctx, tx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func loadConversation(ctx context.Context, tx *sql.Tx, threadID string) (*domain.Conversation, error) {
	var (
		conv                 domain.Conversation
		status, next         string
		pending              sql.NullString
		createdAt, updatedAt string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT thread_id, lead_email, website_url, email_to_send, status, next_node,
		        pending_review, rounds, version, created_at, updated_at
		 FROM conversations WHERE thread_id = ?`, threadID,
	).Scan(
		&conv.ThreadID, &conv.LeadEmail, &conv.WebsiteURL, &conv.EmailToSend, &status, &next,
		&pending, &conv.Rounds, &conv.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{ThreadID: threadID}
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", threadID, err)
	}

	conv.Status = domain.Status(status)
	conv.NextNode = domain.Node(next)
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	if pending.Valid && pending.String != "" {
		var p domain.ReviewPayload
		if err := json.Unmarshal([]byte(pending.String), &p); err != nil {
			return nil, fmt.Errorf("decoding pending review for %s: %w", threadID, err)
		}
		conv.PendingReview = &p
	}
	return &conv, nil
}

func loadMessages(ctx context.Context, tx *sql.Tx, conv *domain.Conversation) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id, name, timestamp
		 FROM messages WHERE thread_id = ? ORDER BY seq`, conv.ThreadID,
	)
	if err != nil {
		return fmt.Errorf("loading messages for %s: %w", conv.ThreadID, err)
	}
	defer rows.Close()

	conv.Messages = []domain.Message{}
	for rows.Next() {
		var (
			m         domain.Message
			toolCalls sql.NullString
			ts        string
		)
		if err := rows.Scan(&m.Role, &m.Content, &toolCalls, &m.ToolCallID, &m.Name, &ts); err != nil {
			return fmt.Errorf("scanning message: %w", err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return fmt.Errorf("decoding tool calls: %w", err)
			}
		}
		m.Timestamp = parseTime(ts)
		conv.Messages = append(conv.Messages, m)
	}
	return rows.Err()
}

// Save writes the conversation row, appends new messages, and records a
// checkpoint entry in one transaction.
func (s *SQLiteCheckpointer) Save(ctx context.Context, conv *domain.Conversation, expectVersion int64) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var stored int
	if expectVersion == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM conversations WHERE thread_id = ?", conv.ThreadID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking conversation %s: %w", conv.ThreadID, err)
		}
		if exists > 0 {
			return domain.ErrConflict
		}
	} else {
		prev, err := loadConversation(ctx, tx, conv.ThreadID)
		if err != nil {
			return err
		}
		if prev.Version != expectVersion {
			return domain.ErrConflict
		}
		if prev.LeadEmail != conv.LeadEmail {
			return fmt.Errorf("checkpoint for %s would change the lead email", conv.ThreadID)
		}
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM messages WHERE thread_id = ?", conv.ThreadID,
		).Scan(&stored); err != nil {
			return fmt.Errorf("counting messages for %s: %w", conv.ThreadID, err)
		}
		if len(conv.Messages) < stored {
			return fmt.Errorf("checkpoint for %s would shrink history from %d to %d messages",
				conv.ThreadID, stored, len(conv.Messages))
		}
	}

	var pending sql.NullString
	if conv.PendingReview != nil {
		b, err := json.Marshal(conv.PendingReview)
		if err != nil {
			return fmt.Errorf("encoding pending review: %w", err)
		}
		pending = sql.NullString{String: string(b), Valid: true}
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	newVersion := expectVersion + 1

	if expectVersion == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversations (thread_id, lead_email, website_url, email_to_send, status, next_node,
			                            pending_review, rounds, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conv.ThreadID, conv.LeadEmail, conv.WebsiteURL, conv.EmailToSend, string(conv.Status), string(conv.NextNode),
			pending, conv.Rounds, newVersion, formatTime(conv.CreatedAt), formatTime(now),
		)
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`UPDATE conversations
			 SET website_url = ?, email_to_send = ?, status = ?, next_node = ?, pending_review = ?,
			     rounds = ?, version = ?, updated_at = ?
			 WHERE thread_id = ? AND version = ?`,
			conv.WebsiteURL, conv.EmailToSend, string(conv.Status), string(conv.NextNode), pending,
			conv.Rounds, newVersion, formatTime(now), conv.ThreadID, expectVersion,
		)
		if err == nil {
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.ErrConflict
			}
		}
	}
	if err != nil {
		return fmt.Errorf("writing conversation %s: %w", conv.ThreadID, err)
	}

	for i := stored; i < len(conv.Messages); i++ {
		m := conv.Messages[i]
		var toolCalls sql.NullString
		if len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("encoding tool calls: %w", err)
			}
			toolCalls = sql.NullString{String: string(b), Valid: true}
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (thread_id, seq, role, content, tool_calls, tool_call_id, name, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			conv.ThreadID, i, m.Role, m.Content, toolCalls, m.ToolCallID, m.Name, formatTime(ts),
		); err != nil {
			return fmt.Errorf("appending message %d to %s: %w", i, conv.ThreadID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, version, status, next_node, messages, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ThreadID, newVersion, string(conv.Status), string(conv.NextNode), len(conv.Messages), formatTime(now),
	); err != nil {
		return fmt.Errorf("recording checkpoint %d for %s: %w", newVersion, conv.ThreadID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint for %s: %w", conv.ThreadID, err)
	}

	conv.Version = newVersion
	conv.UpdatedAt = now
	return nil
}

func (s *SQLiteCheckpointer) Delete(ctx context.Context, threadID string) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "checkpoints"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE thread_id = ?", threadID); err != nil {
			return fmt.Errorf("deleting %s for %s: %w", table, threadID, err)
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE thread_id = ?", threadID)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", threadID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.NotFoundError{ThreadID: threadID}
	}
	return tx.Commit()
}

func (s *SQLiteCheckpointer) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	query := `SELECT c.thread_id, c.lead_email, c.status, c.next_node, c.version, c.updated_at,
	                 (SELECT COUNT(*) FROM messages m WHERE m.thread_id = c.thread_id)
	          FROM conversations c`
	var args []any
	if opts.Status != "" {
		query += " WHERE c.status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY c.updated_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum          Summary
			status, next string
			updatedAt    string
		)
		if err := rows.Scan(&sum.ThreadID, &sum.LeadEmail, &status, &next, &sum.Version, &updatedAt, &sum.Messages); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		sum.Status = domain.Status(status)
		sum.NextNode = domain.Node(next)
		sum.UpdatedAt = parseTime(updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteCheckpointer) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT thread_id FROM conversations WHERE status = ? AND updated_at < ?",
		string(domain.StatusTerminal), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("finding expired conversations: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	purged := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// History returns the recorded checkpoint versions for a thread, oldest first.
func (s *SQLiteCheckpointer) History(ctx context.Context, threadID string) ([]int64, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT version FROM checkpoints WHERE thread_id = ? ORDER BY version", threadID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint history: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteCheckpointer) Close() error {
	return s.db.Close()
}
