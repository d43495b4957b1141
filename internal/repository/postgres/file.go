package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

const fileColumns = `seq, id, team_id, filename, content_type, size_bytes, storage_key, uploaded_by, uploaded_at, deleted_at`

// InsertFile records an uploaded artifact and assigns its sequence.
func (r *Repository) InsertFile(ctx context.Context, file *domain.FileRecord) error {
	const query = `INSERT INTO team_files (id, team_id, filename, content_type, size_bytes, storage_key, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`
	err := r.pool.QueryRow(ctx, query,
		file.ID,
		file.TeamID,
		file.Filename,
		file.ContentType,
		file.SizeBytes,
		file.StorageKey,
		file.UploadedBy,
		file.UploadedAt,
	).Scan(&file.Seq)
	return translate(err)
}

// GetFile returns a file record, including tombstoned ones.
func (r *Repository) GetFile(ctx context.Context, teamID, fileID string) (*domain.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM team_files WHERE team_id = $1 AND id = $2`
	file, err := scanFile(r.pool.QueryRow(ctx, query, teamID, fileID))
	if err != nil {
		return nil, translate(err)
	}
	return file, nil
}

// ListFiles returns live records in upload order.
func (r *Repository) ListFiles(ctx context.Context, teamID string) ([]domain.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM team_files
		WHERE team_id = $1 AND deleted_at IS NULL
		ORDER BY seq`
	rows, err := r.pool.Query(ctx, query, teamID)
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
func (r *Repository) MarkFileDeleted(ctx context.Context, teamID, fileID string) (bool, error) {
	const query = `UPDATE team_files SET deleted_at = NOW()
		WHERE team_id = $1 AND id = $2 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, teamID, fileID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM team_files WHERE team_id = $1 AND id = $2)`, teamID, fileID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func scanFile(row pgx.Row) (*domain.FileRecord, error) {
	var file domain.FileRecord
	if err := row.Scan(
		&file.Seq,
		&file.ID,
		&file.TeamID,
		&file.Filename,
		&file.ContentType,
		&file.SizeBytes,
		&file.StorageKey,
		&file.UploadedBy,
		&file.UploadedAt,
		&file.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &file, nil
}
