package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gcs "cloud.google.com/go/storage"

	"github.com/Lllllllleong/pkrsplitter/internal/config"
	"github.com/Lllllllleong/pkrsplitter/internal/gcp"
	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/Lllllllleong/pkrsplitter/internal/s3"
	"github.com/Lllllllleong/pkrsplitter/internal/splitter"
	"github.com/Lllllllleong/pkrsplitter/internal/storage"
)

// SplitNotifier is told about every history that was split on trigger.
type SplitNotifier interface {
	NotifySplit(ctx context.Context, res *models.SplitResponse) error
}

// Runtime is everything built from one configuration: the storage backend,
// the splitting engine and the optional workflow hand-off.
type Runtime struct {
	Config   *config.Config
	Backend  storage.Backend
	Splitter *splitter.Splitter
	Notifier SplitNotifier

	closers []func() error
}

// NewRuntime creates the clients the configuration asks for.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var backend storage.Backend
	switch cfg.Backend {
	case config.BackendLocal:
		backend = storage.NewLocal(nil)
	case config.BackendGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		closers = append(closers, client.Close)
		store, err := gcp.NewBucketStore(client, cfg.Bucket)
		if err != nil {
			closeAll()
			return nil, err
		}
		backend = store
	case config.BackendS3:
		store, err := s3.New(cfg.S3, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		backend = store
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	var ledger splitter.Ledger
	if cfg.Ledger.Collection != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		closers = append(closers, firestoreClient.Close)
		if ledger, err = gcp.NewSplitLedger(firestoreClient, cfg.Ledger.Collection); err != nil {
			closeAll()
			return nil, err
		}
	}

	var notifier SplitNotifier
	if cfg.Workflow.ID != "" {
		wf, err := gcp.NewWorkflowNotifier(ctx, cfg.ProjectID, cfg.Workflow.Location, cfg.Workflow.ID)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, wf.Close)
		notifier = wf
	}

	rt, err := NewRuntimeWithBackend(cfg, backend, ledger, notifier)
	if err != nil {
		closeAll()
		return nil, err
	}
	rt.closers = closers
	slog.Info("Splitter runtime initialized.",
		"backend", cfg.Backend,
		"bucket", cfg.Bucket,
		"ledger", cfg.Ledger.Collection != "",
		"workflowId", cfg.Workflow.ID,
	)
	return rt, nil
}

// NewRuntimeWithBackend builds the engine over an existing backend. ledger
// and notifier may be nil.
func NewRuntimeWithBackend(cfg *config.Config, backend storage.Backend, ledger splitter.Ledger, notifier SplitNotifier) (*Runtime, error) {
	patterns, err := cfg.Patterns()
	if err != nil {
		return nil, err
	}
	throttled := storage.Throttled(backend, storage.NewWriteLimiter(cfg.Splitter.WritesPerSecond))

	engine, err := splitter.New(throttled, splitter.Options{
		Patterns:         patterns,
		Mapper:           cfg.Mapper(),
		RecordExt:        cfg.Splitter.RecordExt,
		SourceExt:        cfg.Splitter.SourceExt,
		Concurrency:      cfg.Splitter.Concurrency,
		WriteConcurrency: cfg.Splitter.WriteConcurrency,
		BatchTimeout:     cfg.Splitter.BatchTimeout,
		Ledger:           ledger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create splitter: %w", err)
	}
	return &Runtime{
		Config:   cfg,
		Backend:  throttled,
		Splitter: engine,
		Notifier: notifier,
	}, nil
}

// Close releases every client the runtime created.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
