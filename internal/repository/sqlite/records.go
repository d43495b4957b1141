package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

const fileColumns = `seq, id, team_id, filename, content_type, size_bytes, storage_key, uploaded_by, uploaded_at, deleted_at`

// InsertFile records an upload and assigns its sequence.
func (s *Store) InsertFile(ctx context.Context, file *domain.FileRecord) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO team_files (id, team_id, filename, content_type, size_bytes, storage_key, uploaded_by, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING seq`,
		file.ID, file.TeamID, file.Filename, file.ContentType, file.SizeBytes, file.StorageKey, file.UploadedBy,
		toMillis(file.UploadedAt),
	).Scan(&file.Seq)
	return translate(err)
}

// GetFile returns a file record, tombstoned or not.
func (s *Store) GetFile(ctx context.Context, teamID, fileID string) (*domain.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM team_files WHERE team_id = ? AND id = ?`, teamID, fileID)
	file, err := scanFile(row)
	if err != nil {
		return nil, translate(err)
	}
	return file, nil
}

// ListFiles returns live records in upload order.
func (s *Store) ListFiles(ctx context.Context, teamID string) ([]domain.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM team_files WHERE team_id = ? AND deleted_at IS NULL ORDER BY seq`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]domain.FileRecord, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// MarkFileDeleted tombstones a live record.
func (s *Store) MarkFileDeleted(ctx context.Context, teamID, fileID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE team_files SET deleted_at = ? WHERE team_id = ? AND id = ? AND deleted_at IS NULL`,
		toMillis(nowUTC()), teamID, fileID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM team_files WHERE team_id = ? AND id = ?`, teamID, fileID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, repository.ErrNotFound
	}
	return false, err
}

func scanFile(row scanner) (*domain.FileRecord, error) {
	var (
		file       domain.FileRecord
		uploadedAt int64
		deletedAt  sql.NullInt64
	)
	if err := row.Scan(
		&file.Seq,
		&file.ID,
		&file.TeamID,
		&file.Filename,
		&file.ContentType,
		&file.SizeBytes,
		&file.StorageKey,
		&file.UploadedBy,
		&uploadedAt,
		&deletedAt,
	); err != nil {
		return nil, err
	}
	file.UploadedAt = fromMillis(uploadedAt)
	file.DeletedAt = fromNullMillis(deletedAt)
	return &file, nil
}

// AppendMessage stores a message with the next per-team sequence.
func (s *Store) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO chat_messages (id, team_id, seq, sender_id, sender_name, text, created_at)
		 SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ? FROM chat_messages WHERE team_id = ?
		 RETURNING seq`,
		msg.ID, msg.TeamID, msg.SenderID, msg.SenderName, msg.Text, toMillis(msg.CreatedAt), msg.TeamID,
	).Scan(&msg.Seq)
	return translate(err)
}

// ListMessages returns messages after afterSeq in ascending order.
func (s *Store) ListMessages(ctx context.Context, teamID string, afterSeq int64, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, team_id, seq, sender_id, sender_name, text, created_at
		 FROM chat_messages WHERE team_id = ? AND seq > ? ORDER BY seq LIMIT ?`,
		teamID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var (
			msg       domain.ChatMessage
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.TeamID, &msg.Seq, &msg.SenderID, &msg.SenderName, &msg.Text, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
