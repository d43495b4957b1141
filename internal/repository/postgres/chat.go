package postgres

import (
	"context"
	"errors"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

// AppendMessage stores a chat message with the next per-team sequence.
func (r *Repository) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	const query = `INSERT INTO chat_messages (id, team_id, seq, sender_id, sender_name, text, created_at)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6
		FROM chat_messages WHERE team_id = $2
		RETURNING seq`
	err := r.pool.QueryRow(ctx, query,
		msg.ID,
		msg.TeamID,
		msg.SenderID,
		msg.SenderName,
		msg.Text,
		msg.CreatedAt,
	).Scan(&msg.Seq)
	if err = translate(err); errors.Is(err, repository.ErrDuplicate) {
		// a concurrent writer on another replica took the same seq
		return repository.ErrConflict
	}
	return err
}

// ListMessages returns messages after afterSeq in ascending order.
func (r *Repository) ListMessages(ctx context.Context, teamID string, afterSeq int64, limit int) ([]domain.ChatMessage, error) {
	const query = `SELECT id, team_id, seq, sender_id, sender_name, text, created_at
		FROM chat_messages
		WHERE team_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT NULLIF($3, 0)`
	rows, err := r.pool.Query(ctx, query, teamID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.TeamID, &msg.Seq, &msg.SenderID, &msg.SenderName, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
