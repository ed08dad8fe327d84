// Package splitter splits raw hand history files into one object per hand
// on any storage backend, one file at a time or as a concurrent batch.
package splitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/pkrsplitter/internal/hands"
	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/Lllllllleong/pkrsplitter/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency      = 10
	DefaultWriteConcurrency = 4
	DefaultExt              = ".txt"
)

// Options configures a Splitter. Zero values take the defaults.
type Options struct {
	Patterns *hands.Patterns
	Mapper   hands.Mapper
	// RecordExt is appended to the hand id to name each split file.
	RecordExt string
	// SourceExt filters batch listings; empty keeps every listed file.
	SourceExt string
	// Concurrency bounds how many sources a batch processes at once.
	Concurrency int
	// WriteConcurrency bounds the concurrent hand writes of one source.
	WriteConcurrency int
	// BatchTimeout caps a whole SplitAll run; zero means no deadline.
	BatchTimeout time.Duration
	// Ledger backs ModeSkipIfEverSplit and receives every outcome. When nil
	// the existence of the split directory is used instead.
	Ledger Ledger
	Logger *slog.Logger
}

// Splitter composes the hand patterns, the destination mapper and a storage
// backend. It holds no per-source state and is safe for concurrent use.
type Splitter struct {
	backend  storage.Backend
	patterns *hands.Patterns
	mapper   hands.Mapper
	ledger   Ledger
	logger   *slog.Logger
	opts     Options
}

// Result describes what happened to one source.
type Result struct {
	Source         string
	DestinationDir string
	// Records is the number of hands found in the source.
	Records int
	// Written is the number of hands persisted.
	Written int
	Skipped bool
}

// placement is one hand and where it goes.
type placement struct {
	location string
	text     string
}

// New creates a Splitter writing through backend.
func New(backend storage.Backend, opts Options) (*Splitter, error) {
	if backend == nil {
		return nil, fmt.Errorf("splitter: backend must be provided")
	}
	if opts.Patterns == nil {
		opts.Patterns = hands.DefaultPatterns()
	}
	if opts.Mapper == (hands.Mapper{}) {
		opts.Mapper = hands.DefaultMapper()
	}
	if opts.Mapper.RawSegment == "" || opts.Mapper.SplitSegment == "" || opts.Mapper.RawSegment == opts.Mapper.SplitSegment {
		return nil, fmt.Errorf("splitter: raw and split segments must be distinct and non-empty")
	}
	if opts.RecordExt == "" {
		opts.RecordExt = DefaultExt
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = DefaultWriteConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = backendLedger{backend: backend, mapper: opts.Mapper}
	}

	return &Splitter{
		backend:  backend,
		patterns: opts.Patterns,
		mapper:   opts.Mapper,
		ledger:   ledger,
		logger:   opts.Logger,
		opts:     opts,
	}, nil
}

// DestinationDir is the directory holding the hands of source.
func (s *Splitter) DestinationDir(source string) string {
	return s.mapper.Dir(source)
}

// Split applies mode to source.
func (s *Splitter) Split(ctx context.Context, source string, mode Mode) (Result, error) {
	switch mode {
	case ModeAlways, "":
		return s.SplitOne(ctx, source)
	case ModeSkipIfAnyFileExists:
		return s.SplitIfNewFiles(ctx, source)
	case ModeSkipIfEverSplit:
		return s.SplitIfNewSource(ctx, source)
	default:
		return Result{Source: source, DestinationDir: s.mapper.Dir(source)}, fmt.Errorf("unknown idempotency mode %q", mode)
	}
}

// SplitIfNewFiles splits source unless its split directory already holds a file.
func (s *Splitter) SplitIfNewFiles(ctx context.Context, source string) (Result, error) {
	dir := s.mapper.Dir(source)
	// The trailing slash keeps "x1" from matching the hands of "x10".
	exists, err := s.backend.ExistsUnder(ctx, dir+"/")
	if err != nil {
		return Result{Source: source, DestinationDir: dir}, fmt.Errorf("failed to check split files of %s: %w", source, err)
	}
	if exists {
		return s.skip(source, dir, "split files already exist"), nil
	}
	return s.SplitOne(ctx, source)
}

// SplitIfNewSource splits source unless the ledger says it was split before.
func (s *Splitter) SplitIfNewSource(ctx context.Context, source string) (Result, error) {
	dir := s.mapper.Dir(source)
	done, err := s.ledger.WasSplit(ctx, source)
	if err != nil {
		return Result{Source: source, DestinationDir: dir}, fmt.Errorf("failed to check split history of %s: %w", source, err)
	}
	if done {
		return s.skip(source, dir, "source was split before"), nil
	}
	return s.SplitOne(ctx, source)
}

// SplitOne reads source, splits it into hands and writes every hand to the
// split directory. A read failure aborts the source. Write failures are
// collected per hand and do not stop or roll back the other writes; the
// returned error then joins one *storage.WriteError per failed hand.
func (s *Splitter) SplitOne(ctx context.Context, source string) (Result, error) {
	res := Result{Source: source, DestinationDir: s.mapper.Dir(source)}
	logCtx := s.logger.With("sourceLocation", source, "destinationDir", res.DestinationDir)
	if runID := RunIDFrom(ctx); runID != "" {
		logCtx = logCtx.With("runId", runID)
	}

	raw, err := s.backend.ReadText(ctx, source)
	if err != nil {
		logCtx.Error("Failed to read source", "error", err)
		err = fmt.Errorf("failed to read %s: %w", source, err)
		s.record(ctx, logCtx, res, err)
		return res, err
	}

	found := s.patterns.Split(raw)
	res.Records = len(found)
	plan := s.plan(logCtx, res.DestinationDir, found)

	errs := s.writeAll(ctx, plan)
	res.Written = len(plan)
	for _, e := range errs {
		if e != nil {
			res.Written--
			logCtx.Error("Failed to write hand", "error", e)
		}
	}
	err = errors.Join(errs...)

	s.record(ctx, logCtx, res, err)
	if err != nil {
		return res, err
	}
	logCtx.Info("Source split complete.", "handCount", res.Records, "writtenCount", res.Written)
	return res, nil
}

// plan names every hand. Empty hands are dropped. A hand without an id gets
// a positional one so it cannot overwrite a sibling. When an id repeats the
// last hand wins, as a sequential overwrite would.
func (s *Splitter) plan(logCtx *slog.Logger, dir string, found []string) []placement {
	plan := make([]placement, 0, len(found))
	index := make(map[string]int, len(found))
	for i, text := range found {
		if text == "" {
			continue
		}
		id := s.patterns.ExtractID(text)
		if id == "" {
			id = fmt.Sprintf("unidentified-%05d", i+1)
			logCtx.Warn("Hand id not found, using positional id.", "position", i+1, "handId", id)
		}
		loc := s.mapper.Location(dir, id, s.opts.RecordExt)
		if j, dup := index[loc]; dup {
			logCtx.Warn("Duplicate hand id, keeping the last hand.", "handId", id, "position", i+1)
			plan[j].text = text
			continue
		}
		index[loc] = len(plan)
		plan = append(plan, placement{location: loc, text: text})
	}
	return plan
}

// writeAll writes every placement and returns one error slot per placement.
func (s *Splitter) writeAll(ctx context.Context, plan []placement) []error {
	errs := make([]error, len(plan))
	var g errgroup.Group
	g.SetLimit(s.opts.WriteConcurrency)
	for i, p := range plan {
		g.Go(func() error {
			if err := s.backend.WriteRecord(ctx, p.location, p.text); err != nil {
				errs[i] = &storage.WriteError{Location: p.location, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *Splitter) skip(source, dir, reason string) Result {
	s.logger.Info("Skipping source.", "sourceLocation", source, "destinationDir", dir, "reason", reason)
	return Result{Source: source, DestinationDir: dir, Skipped: true}
}

// record hands the outcome to the ledger. A ledger failure never fails the split.
func (s *Splitter) record(ctx context.Context, logCtx *slog.Logger, res Result, splitErr error) {
	run := models.SplitRun{
		SourceLocation: res.Source,
		DestinationDir: res.DestinationDir,
		Status:         models.RunSplit,
		RecordCount:    res.Records,
		WrittenCount:   res.Written,
		RunID:          RunIDFrom(ctx),
		UpdatedAt:      time.Now().UTC(),
	}
	if splitErr != nil {
		run.Status = models.RunFailed
		run.ErrorDetails = splitErr.Error()
	}
	if err := s.ledger.Record(ctx, run); err != nil {
		logCtx.Error("CRITICAL: Failed to record split status in the ledger.", "status", run.Status, "ledgerError", err)
	}
}
