package models

// These structs define the JSON payloads exchanged with the trigger and
// batch entry points.

// GCSEvent is the payload of a GCS object finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// SplitResponse is the outcome of splitting one history file on trigger.
type SplitResponse struct {
	Status         string `json:"status"`
	Bucket         string `json:"bucket,omitempty"`
	SourceLocation string `json:"sourceLocation"`
	DestinationDir string `json:"destinationDir,omitempty"`
	RecordCount    int    `json:"recordCount"`
	Error          string `json:"error,omitempty"`
}

// BatchRequest is the input of the batch-splitter function.
type BatchRequest struct {
	Root string `json:"root"`
	Mode string `json:"mode"`
}

// BatchResponse is the per-source ledger of a batch run.
type BatchResponse struct {
	RunID    string          `json:"runId"`
	Root     string          `json:"root"`
	Mode     string          `json:"mode"`
	Total    int             `json:"total"`
	Split    int             `json:"split"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Outcomes []SourceOutcome `json:"outcomes"`
}

// SourceOutcome is the result of one source within a batch.
type SourceOutcome struct {
	SourceLocation string `json:"sourceLocation"`
	DestinationDir string `json:"destinationDir"`
	Status         string `json:"status"`
	RecordCount    int    `json:"recordCount"`
	WrittenCount   int    `json:"writtenCount"`
	Error          string `json:"error,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSplit   = "split"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)
