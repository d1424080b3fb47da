package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/eris-support/support-desk/internal/domain"
)

// ChatMessageRepository manages the append-only ticket conversation.
type ChatMessageRepository interface {
	// Append inserts the messages in order within a single transaction.
	Append(ctx context.Context, msgs ...*domain.ChatMessage) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.ChatMessage, error)
}

type chatMessageRepository struct {
	db beginner
}

// NewChatMessageRepository builds repository.
func NewChatMessageRepository(db beginner) ChatMessageRepository {
	return &chatMessageRepository{db: db}
}

func (r *chatMessageRepository) Append(ctx context.Context, msgs ...*domain.ChatMessage) error {
	const query = `
        INSERT INTO chat_messages (ticket_id, role, text)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	if len(msgs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, msg := range msgs {
			if err := tx.QueryRow(ctx, query, msg.TicketID, msg.Role, msg.Text).
				Scan(&msg.ID, &msg.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *chatMessageRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.ChatMessage, error) {
	const query = `
        SELECT id, ticket_id, role, text, created_at
        FROM chat_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.ChatMessage{}
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Role,
			&msg.Text,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
