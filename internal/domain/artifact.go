package domain

import "time"

// Artifact is an immutable reference to a stored data payload. It is created
// on ingestion or by a completed job and never edited in place; downstream
// steps produce new artifacts instead.
type Artifact struct {
	ID          string
	StorageKey  string
	Filename    string
	ContentType string
	SizeBytes   int64
	Checksum    string
	Modality    Modality
	RowCount    *int64
	ColumnCount *int64
	ProducedBy  string // job id for derived artifacts, empty for uploads
	CreatedAt   time.Time
}
