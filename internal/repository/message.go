package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/model"
)

// ErrNotFound is returned for lookups that match no row.
var ErrNotFound = errors.New("not found")

// MessageRepository is the durable message store. The relay appends to it
// fire-and-forget during live routing; history reads are served over HTTP
// independently of the router.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Append(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Append", time.Now())()
	var receiver, groupName *string
	if m.IsGroup {
		groupName = &m.GroupName
	} else {
		receiver = &m.Receiver
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, sender, receiver, group_name, body, attachment_url, is_group, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Sender, receiver, groupName, m.Text, m.AttachmentURL, m.IsGroup, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Append: %w", err)
	}
	return nil
}

// Direct returns the conversation between two identities (unordered pair),
// ordered by timestamp ascending.
func (r *MessageRepository) Direct(ctx context.Context, a, b string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Direct", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, sender, COALESCE(receiver, ''), COALESCE(group_name, ''), body, attachment_url, is_group, created_at
		 FROM messages
		 WHERE is_group = FALSE
		   AND ((sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1))
		 ORDER BY created_at ASC
		 LIMIT $3`, a, b, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Direct query: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Group returns a group's conversation, ordered by timestamp ascending.
func (r *MessageRepository) Group(ctx context.Context, name string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Group", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, sender, COALESCE(receiver, ''), COALESCE(group_name, ''), body, attachment_url, is_group, created_at
		 FROM messages
		 WHERE is_group = TRUE AND group_name = $1
		 ORDER BY created_at ASC
		 LIMIT $2`, name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Group query: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows pgxRows) ([]model.Message, error) {
	messages := make([]model.Message, 0, 64)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Receiver, &m.GroupName,
			&m.Text, &m.AttachmentURL, &m.IsGroup, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("msgRepo scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo rows: %w", err)
	}
	return messages, nil
}
