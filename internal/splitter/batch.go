package splitter

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type runIDKey struct{}

// WithRunID tags ctx with the id of the run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id carried by ctx, if any.
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Outcome is the result of one source within a batch.
type Outcome struct {
	Result
	Err error
}

// Status is "failed", "skipped" or "split".
func (o Outcome) Status() string {
	switch {
	case o.Err != nil:
		return models.StatusFailed
	case o.Skipped:
		return models.StatusSkipped
	default:
		return models.StatusSplit
	}
}

// Report is the per-source ledger of one batch run.
type Report struct {
	RunID    string
	Root     string
	Mode     Mode
	Outcomes []Outcome
}

// Counts tallies the outcomes by status.
func (r *Report) Counts() (split, skipped, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status() {
		case models.StatusFailed:
			failed++
		case models.StatusSkipped:
			skipped++
		default:
			split++
		}
	}
	return split, skipped, failed
}

// Failures returns the outcomes that ended in an error.
func (r *Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// SplitAll lists every source under root and splits them with mode on a
// bounded pool of workers. Every source is attempted whatever happens to
// the others; the only error returned is a failure to list root.
func (s *Splitter) SplitAll(ctx context.Context, root string, mode Mode) (*Report, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	runID := RunIDFrom(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = WithRunID(ctx, runID)
	}
	if s.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}
	logCtx := s.logger.With("runId", runID, "root", root, "mode", string(mode))

	listed, err := s.backend.ListSources(ctx, root)
	if err != nil {
		logCtx.Error("Failed to list sources", "error", err)
		return nil, fmt.Errorf("failed to list sources under %s: %w", root, err)
	}
	sources := s.filterSources(listed)
	logCtx.Info("Starting batch split.", "sourceCount", len(sources), "concurrency", s.opts.Concurrency)

	report := &Report{RunID: runID, Root: root, Mode: mode, Outcomes: make([]Outcome, len(sources))}
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, source := range sources {
		g.Go(func() error {
			report.Outcomes[i] = s.splitGuarded(ctx, source, mode)
			return nil
		})
	}
	_ = g.Wait()

	split, skipped, failed := report.Counts()
	logCtx.Info("Batch split complete.", "split", split, "skipped", skipped, "failed", failed)
	return report, nil
}

// splitGuarded runs one source of a batch. A panic is turned into that
// source's failure.
func (s *Splitter) splitGuarded(ctx context.Context, source string, mode Mode) (out Outcome) {
	out.Source = source
	out.DestinationDir = s.mapper.Dir(source)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic while splitting source", "sourceLocation", source, "panic", r)
			out.Err = fmt.Errorf("panic while splitting %s: %v", source, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		out.Err = fmt.Errorf("batch ended before %s was split: %w", source, err)
		return out
	}
	res, err := s.Split(ctx, source, mode)
	return Outcome{Result: res, Err: err}
}

func (s *Splitter) filterSources(listed []string) []string {
	sources := make([]string, 0, len(listed))
	for _, key := range listed {
		if strings.HasSuffix(key, "/") {
			continue
		}
		if s.opts.SourceExt != "" && !strings.HasSuffix(key, s.opts.SourceExt) {
			continue
		}
		sources = append(sources, key)
	}
	return sources
}
