package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/pkrsplitter/internal/config"
	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/Lllllllleong/pkrsplitter/internal/splitter"
)

// ErrInvalidRequest marks a batch request that cannot be run as given.
var ErrInvalidRequest = errors.New("invalid batch request")

type BatchSplitterConfig struct {
	Root string
	Mode splitter.Mode
}

// BatchSplitterFunction splits every history file under a root.
type BatchSplitterFunction struct {
	runtime *Runtime
	config  BatchSplitterConfig
}

// NewBatchSplitter builds the function from the environment.
func NewBatchSplitter(ctx context.Context) (*BatchSplitterFunction, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	rt, err := NewRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewBatchSplitterWithRuntime(rt)
}

// NewBatchSplitterWithRuntime builds the function over rt.
func NewBatchSplitterWithRuntime(rt *Runtime) (*BatchSplitterFunction, error) {
	mode, err := splitter.ParseMode(rt.Config.Splitter.Mode)
	if err != nil {
		return nil, err
	}
	f := &BatchSplitterFunction{
		runtime: rt,
		config:  BatchSplitterConfig{Root: rt.Config.Root(), Mode: mode},
	}
	slog.Info("Batch Splitter logic initialized.", "root", f.config.Root, "mode", string(mode))
	return f, nil
}

// Process runs one batch. Per-source failures are reported in the response;
// only an invalid request or a failure to list the root is an error.
func (f *BatchSplitterFunction) Process(ctx context.Context, req *models.BatchRequest) (*models.BatchResponse, error) {
	root := f.config.Root
	if req.Root != "" {
		root = req.Root
	}
	mode := f.config.Mode
	if req.Mode != "" {
		parsed, err := splitter.ParseMode(req.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		mode = parsed
	}

	logCtx := slog.With("root", root, "mode", string(mode))
	logCtx.Info("Processing batch split request.")

	report, err := f.runtime.Splitter.SplitAll(ctx, root, mode)
	if err != nil {
		logCtx.Error("Batch split failed", "error", err)
		return nil, err
	}
	res := ToBatchResponse(report)
	logCtx.Info("Batch split request complete.", "runId", res.RunID, "total", res.Total, "failed", res.Failed)
	return res, nil
}

// ToBatchResponse converts a batch report to its wire form.
func ToBatchResponse(report *splitter.Report) *models.BatchResponse {
	res := &models.BatchResponse{
		RunID:    report.RunID,
		Root:     report.Root,
		Mode:     string(report.Mode),
		Total:    len(report.Outcomes),
		Outcomes: make([]models.SourceOutcome, 0, len(report.Outcomes)),
	}
	res.Split, res.Skipped, res.Failed = report.Counts()
	for _, o := range report.Outcomes {
		out := models.SourceOutcome{
			SourceLocation: o.Source,
			DestinationDir: o.DestinationDir,
			Status:         o.Status(),
			RecordCount:    o.Records,
			WrittenCount:   o.Written,
		}
		if o.Err != nil {
			out.Error = o.Err.Error()
		}
		res.Outcomes = append(res.Outcomes, out)
	}
	return res
}
