package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/pkrsplitter/internal/config"
	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/Lllllllleong/pkrsplitter/internal/splitter"
)

type HistorySplitterConfig struct {
	Bucket    string
	Mode      splitter.Mode
	SourceExt string
}

// HistorySplitterFunction splits the history file named by one object
// finalized event.
type HistorySplitterFunction struct {
	runtime *Runtime
	config  HistorySplitterConfig
}

// NewHistorySplitter builds the function from the environment.
func NewHistorySplitter(ctx context.Context) (*HistorySplitterFunction, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.Backend == config.BackendLocal {
		return nil, fmt.Errorf("SPLITTER_BACKEND must name an object store for triggered splitting")
	}
	rt, err := NewRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewHistorySplitterWithRuntime(rt)
}

// NewHistorySplitterWithRuntime builds the function over rt.
func NewHistorySplitterWithRuntime(rt *Runtime) (*HistorySplitterFunction, error) {
	mode, err := splitter.ParseMode(rt.Config.Splitter.TriggerMode)
	if err != nil {
		return nil, err
	}
	f := &HistorySplitterFunction{
		runtime: rt,
		config: HistorySplitterConfig{
			Bucket:    rt.Config.Bucket,
			Mode:      mode,
			SourceExt: rt.Config.Splitter.SourceExt,
		},
	}
	slog.Info("History Splitter logic initialized.", "bucket", f.config.Bucket, "mode", string(mode))
	return f, nil
}

// Process splits the object of e. Objects outside the raw tree, including
// the split files this function writes itself, are ignored. Any failure is
// returned so the event is retried.
func (f *HistorySplitterFunction) Process(ctx context.Context, e models.GCSEvent) (*models.SplitResponse, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if runID := splitter.RunIDFrom(ctx); runID != "" {
		logCtx = logCtx.With("runId", runID)
	}
	res, err := f.process(ctx, logCtx, e)
	logResponse(logCtx, res)
	return res, err
}

// logResponse writes the response of one event as a single structured line.
func logResponse(logCtx *slog.Logger, res *models.SplitResponse) {
	attrs := []any{
		"status", res.Status,
		"sourceLocation", res.SourceLocation,
		"destinationDir", res.DestinationDir,
		"recordCount", res.RecordCount,
	}
	if res.Status == models.StatusError {
		logCtx.Error("History split response.", append(attrs, "error", res.Error)...)
		return
	}
	logCtx.Info("History split response.", attrs...)
}

func (f *HistorySplitterFunction) process(ctx context.Context, logCtx *slog.Logger, e models.GCSEvent) (*models.SplitResponse, error) {
	res := &models.SplitResponse{Bucket: e.Bucket, SourceLocation: e.Name}

	if f.config.Bucket != "" && e.Bucket != f.config.Bucket {
		err := fmt.Errorf("event for bucket %q but the splitter serves %q", e.Bucket, f.config.Bucket)
		logCtx.Error("Rejecting event from an unexpected bucket", "error", err)
		res.Status = models.StatusError
		res.Error = err.Error()
		return res, err
	}
	if !f.runtime.Config.Mapper().IsSource(e.Name, f.config.SourceExt) {
		logCtx.Info("Ignoring object outside the raw histories tree.")
		res.Status = models.StatusSkipped
		return res, nil
	}

	logCtx.Info("Processing new history file.")
	out, err := f.runtime.Splitter.Split(ctx, e.Name, f.config.Mode)
	res.DestinationDir = out.DestinationDir
	res.RecordCount = out.Written
	if err != nil {
		logCtx.Error("Failed to split history file", "error", err)
		res.Status = models.StatusError
		res.Error = err.Error()
		return res, err
	}
	if out.Skipped {
		res.Status = models.StatusSkipped
		return res, nil
	}
	res.Status = models.StatusSuccess

	if f.runtime.Notifier != nil {
		if err := f.runtime.Notifier.NotifySplit(ctx, res); err != nil {
			logCtx.Error("Failed to hand split directory to workflow", "error", err)
			res.Status = models.StatusError
			res.Error = err.Error()
			return res, err
		}
		logCtx.Info("Hand-off to workflow complete.")
	}
	return res, nil
}
