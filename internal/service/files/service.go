// Package files keeps custody of the artifacts a team uploads. Records are
// appended under the team lock so concurrent uploads are never lost.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/skillsync/internal/blob"
	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/service/access"
	"github.com/splax/skillsync/internal/service/workflow"
	"github.com/splax/skillsync/internal/teamlock"
)

// DefaultMaxUploadBytes caps a single upload.
const DefaultMaxUploadBytes int64 = 25 << 20

// Store is the persistence custody needs.
type Store interface {
	repository.TeamRepository
	repository.FileRepository
}

// Config holds upload limits.
type Config struct {
	MaxUploadBytes int64
}

// UploadInput is a file being added to a team.
type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Service handles file custody.
type Service struct {
	store  Store
	blobs  blob.Store
	locker teamlock.Locker
	cfg    Config
	logger *slog.Logger
}

// New constructs a Service.
func New(store Store, blobs blob.Store, locker teamlock.Locker, cfg Config, logger *slog.Logger) Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return Service{store: store, blobs: blobs, locker: locker, cfg: cfg, logger: logger.With("component", "files")}
}

// Upload stores the blob and appends its record. The blob is streamed before
// the lock is taken; the lock state is re-checked before the record lands.
func (s Service) Upload(ctx context.Context, actor domain.Actor, teamID string, in UploadInput) (*domain.FileRecord, error) {
	filename := path.Base(strings.ReplaceAll(strings.TrimSpace(in.Filename), "\\", "/"))
	if filename == "" || filename == "." || filename == "/" {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}
	if in.Body == nil {
		return nil, fmt.Errorf("%w: file body is required", domain.ErrValidation)
	}

	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireMember(actor, team); err != nil {
		return nil, err
	}
	if err := workflow.EnsureEditable(team, "upload files"); err != nil {
		return nil, err
	}

	rec := &domain.FileRecord{
		ID:          uuid.NewString(),
		TeamID:      team.ID,
		Filename:    filename,
		ContentType: strings.TrimSpace(in.ContentType),
		UploadedBy:  actor.UserID,
	}
	rec.StorageKey = team.ID + "/" + rec.ID
	size, err := s.blobs.Put(ctx, rec.StorageKey, in.Body, s.cfg.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, blob.ErrTooLarge) {
			return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, s.cfg.MaxUploadBytes)
		}
		return nil, err
	}
	rec.SizeBytes = size

	if err := s.commit(ctx, actor, rec); err != nil {
		s.discardBlob(rec.StorageKey)
		return nil, err
	}
	s.logger.Info("file uploaded", "team_id", team.ID, "file_id", rec.ID, "user_id", actor.UserID, "size_bytes", size)
	return rec, nil
}

func (s Service) commit(ctx context.Context, actor domain.Actor, rec *domain.FileRecord) error {
	release, err := access.Lock(ctx, s.locker, rec.TeamID)
	if err != nil {
		return err
	}
	defer release()

	team, err := access.LoadTeam(ctx, s.store, rec.TeamID)
	if err != nil {
		return err
	}
	if err := access.RequireMember(actor, team); err != nil {
		return err
	}
	if err := workflow.EnsureEditable(team, "upload files"); err != nil {
		return err
	}
	rec.UploadedAt = time.Now().UTC()
	return access.Translate(s.store.InsertFile(ctx, rec), "file "+rec.ID)
}

// Delete tombstones a file. Deleting a file that is already gone succeeds so
// retried deletes stay idempotent.
func (s Service) Delete(ctx context.Context, actor domain.Actor, teamID, fileID string) error {
	if strings.TrimSpace(fileID) == "" {
		return fmt.Errorf("%w: file id is required", domain.ErrValidation)
	}
	release, err := access.Lock(ctx, s.locker, teamID)
	if err != nil {
		return err
	}
	defer release()

	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return err
	}
	if err := workflow.EnsureEditable(team, "delete files"); err != nil {
		return err
	}
	rec, err := s.store.GetFile(ctx, team.ID, fileID)
	if err != nil {
		return access.Translate(err, "file "+fileID)
	}
	if actor.UserID != team.CreatorID && actor.UserID != rec.UploadedBy {
		return fmt.Errorf("%w: only the team creator or the uploader may delete %s", domain.ErrPermission, rec.Filename)
	}
	if rec.Deleted() {
		return nil
	}

	removed, err := s.store.MarkFileDeleted(ctx, team.ID, fileID)
	if err != nil {
		return access.Translate(err, "file "+fileID)
	}
	if removed {
		s.discardBlob(rec.StorageKey)
		s.logger.Info("file deleted", "team_id", team.ID, "file_id", fileID, "user_id", actor.UserID)
	}
	return nil
}

// List returns the live files of a team in upload order.
func (s Service) List(ctx context.Context, actor domain.Actor, teamID string) ([]domain.FileRecord, error) {
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireViewer(actor, team); err != nil {
		return nil, err
	}
	return s.store.ListFiles(ctx, team.ID)
}

// Open returns a file's record and contents for download.
func (s Service) Open(ctx context.Context, actor domain.Actor, teamID, fileID string) (*domain.FileRecord, io.ReadCloser, error) {
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, nil, err
	}
	if err := access.RequireViewer(actor, team); err != nil {
		return nil, nil, err
	}
	rec, err := s.store.GetFile(ctx, team.ID, fileID)
	if err != nil {
		return nil, nil, access.Translate(err, "file "+fileID)
	}
	if rec.Deleted() {
		return nil, nil, fmt.Errorf("%w: file %s was deleted", domain.ErrNotFound, fileID)
	}
	body, err := s.blobs.Open(ctx, rec.StorageKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: contents of file %s are missing", domain.ErrNotFound, fileID)
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, body, nil
}

func (s Service) discardBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to remove blob", "storage_key", key, "error", err)
	}
}
