package domain

import "time"

// FileRecord describes an artifact uploaded to a team's shared space.
type FileRecord struct {
	ID          string     `json:"id"`
	TeamID      string     `json:"team_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	StorageKey  string     `json:"-"`
	UploadedBy  string     `json:"uploaded_by"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	Seq         int64      `json:"seq"`
	DeletedAt   *time.Time `json:"-"`
}

// Deleted reports whether the record has been tombstoned.
func (f FileRecord) Deleted() bool {
	return f.DeletedAt != nil
}
