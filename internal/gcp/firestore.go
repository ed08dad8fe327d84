package gcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/pkrsplitter/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// SplitLedger keeps one status document per source in a Firestore
// collection. A source counts as split once any run of it succeeded, even
// if its split files were removed later.
type SplitLedger struct {
	client     *firestore.Client
	collection string
}

// NewSplitLedger records split runs in collection.
func NewSplitLedger(client *firestore.Client, collection string) (*SplitLedger, error) {
	if client == nil {
		return nil, fmt.Errorf("a firestore client must be provided")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name must be provided")
	}
	return &SplitLedger{client: client, collection: collection}, nil
}

// WasSplit reports whether source has ever been split successfully.
func (l *SplitLedger) WasSplit(ctx context.Context, source string) (bool, error) {
	docs, err := l.client.Collection(l.collection).
		Where("sourceLocation", "==", source).
		Where("everSplit", "==", true).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, fmt.Errorf("failed to query split ledger: %w", err)
	}
	return len(docs) > 0, nil
}

// Record merges run into the status document of its source.
func (l *SplitLedger) Record(ctx context.Context, run models.SplitRun) error {
	docRef := l.client.Collection(l.collection).Doc(RunDocID(run.SourceLocation))
	if _, err := docRef.Set(ctx, runFields(run), firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to record split run of %s: %w", run.SourceLocation, err)
	}
	return nil
}

// RunDocID is the status document id of source. Object names may contain
// slashes, which Firestore ids cannot.
func RunDocID(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// runFields is the merge payload of run. everSplit is only ever set, so a
// later failed run does not clear it.
func runFields(run models.SplitRun) map[string]interface{} {
	fields := map[string]interface{}{
		"sourceLocation": run.SourceLocation,
		"destinationDir": run.DestinationDir,
		"status":         run.Status,
		"recordCount":    run.RecordCount,
		"writtenCount":   run.WrittenCount,
		"errorDetails":   run.ErrorDetails,
		"runId":          run.RunID,
		"updatedAt":      run.UpdatedAt,
	}
	if run.Status == models.RunSplit {
		fields["everSplit"] = true
	}
	return fields
}
