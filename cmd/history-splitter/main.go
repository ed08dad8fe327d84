package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/Lllllllleong/pkrsplitter/internal/services"
	"github.com/Lllllllleong/pkrsplitter/internal/splitter"
)

var (
	historySplitterInstance *services.HistorySplitterFunction
	once                    sync.Once
	initErr                 error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("SplitHistory", splitHistory)
}

// main is required by the Go Functions Framework.
func main() {}

// splitHistory is the Cloud Function entry point for object finalized events.
func splitHistory(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		historySplitterInstance, initErr = services.NewHistorySplitter(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// The event id ties every log line and ledger entry to this delivery.
	if _, err := historySplitterInstance.Process(splitter.WithRunID(ctx, e.ID()), gcsEvent); err != nil {
		// Process logs the response, failures included. Returning err lets the event be retried.
		return err
	}
	return nil
}
