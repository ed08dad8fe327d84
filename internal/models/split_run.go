package models

import "time"

// Ledger statuses of a history file.
const (
	RunSplit  = "SPLIT"
	RunFailed = "FAILED"
)

// SplitRun is the ledger record of the latest split of one history file.
type SplitRun struct {
	SourceLocation string
	DestinationDir string
	Status         string
	RecordCount    int
	WrittenCount   int
	ErrorDetails   string
	RunID          string // For traceability
	UpdatedAt      time.Time
}
