package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/Lllllllleong/pkrsplitter/internal/services"
)

var (
	batchSplitterInstance *services.BatchSplitterFunction
	once                  sync.Once
	initErr               error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleSplitAll" is the entry point name configured in GCP.
	functions.HTTP("HandleSplitAll", handleSplitAll)
}

// main is required by the Go Functions Framework.
func main() {}

// handleSplitAll splits every history file under the requested root.
func handleSplitAll(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		batchSplitterInstance, initErr = services.NewBatchSplitter(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: BatchSplitter initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	// An empty body runs the configured root and mode.
	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := batchSplitterInstance.Process(r.Context(), &req)
	if errors.Is(err, services.ErrInvalidRequest) {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "runId", res.RunID)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
