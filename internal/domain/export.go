package domain

import "time"

// ExportFormat enumerates supported export encodings.
type ExportFormat string

const (
	// ExportCSV is a flat tabular file.
	ExportCSV ExportFormat = "csv"
	// ExportRecords is a flat structured record file (JSON Lines).
	ExportRecords ExportFormat = "records"
	// ExportBundle is a framework-agnostic columnar dataset bundle: a zip of
	// the data, its schema, and a manifest.
	ExportBundle ExportFormat = "bundle"
)

// Valid reports whether f names a supported export format.
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportCSV, ExportRecords, ExportBundle:
		return true
	}
	return false
}

// Export records one materialized export of a completed job's output
// artifact. The same (artifact, format) pair always reproduces the same
// bytes.
type Export struct {
	ID         string
	JobID      string
	Format     ExportFormat
	ArtifactID string
	Schema     []string
	RowCount   int64
	CreatedAt  time.Time
}
