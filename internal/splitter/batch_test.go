package splitter

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/pkrsplitter/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gaugeBackend tracks the peak number of concurrent reads.
type gaugeBackend struct {
	storage.Backend
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeBackend) ReadText(ctx context.Context, location string) (string, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return g.Backend.ReadText(ctx, location)
}

// panicBackend panics on reads of one location.
type panicBackend struct {
	storage.Backend
	location string
}

func (p *panicBackend) ReadText(ctx context.Context, location string) (string, error) {
	if location == p.location {
		panic("boom")
	}
	return p.Backend.ReadText(ctx, location)
}

func seedBatch(mem *storage.Memory, k int) {
	for i := 0; i < k; i++ {
		mem.Put(fmt.Sprintf("%s/s%02d.txt", rawRoot, i), []byte(history(i*10+1, i*10+2)))
	}
}

func TestSplitAll_IsolatesFailingSource(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	seedBatch(mem, 5)
	broken := rawRoot + "/s02.txt"
	backend := &flakyBackend{Backend: mem, failRead: func(loc string) bool { return loc == broken }}
	s := newTestSplitter(t, backend, Options{Concurrency: 2})

	report, err := s.SplitAll(ctx, rawRoot, ModeAlways)

	require.NoError(t, err)
	require.Len(t, report.Outcomes, 5)
	split, skipped, failed := report.Counts()
	assert.Equal(t, 4, split)
	assert.Zero(t, skipped)
	assert.Equal(t, 1, failed)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, broken, failures[0].Source)
	assert.ErrorIs(t, failures[0].Err, storage.ErrUnavailable)

	for i := 0; i < 5; i++ {
		keys := mem.Keys(fmt.Sprintf("data/histories/split/s%02d/", i))
		if i == 2 {
			assert.Empty(t, keys)
			continue
		}
		assert.Len(t, keys, 2)
	}
}

func TestSplitAll_UndecodableSourceIsReported(t *testing.T) {
	mem := storage.NewMemory()
	seedBatch(mem, 3)
	mem.Put(rawRoot+"/latin1.txt", []byte("*** NEW HAND #9 ***\nh\xe9ro\n"))
	s := newTestSplitter(t, mem, Options{})

	report, err := s.SplitAll(context.Background(), rawRoot, ModeAlways)

	require.NoError(t, err)
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, rawRoot+"/latin1.txt", failures[0].Source)
	assert.ErrorIs(t, failures[0].Err, storage.ErrDecode)
	assert.Equal(t, "failed", failures[0].Status())
}

func TestSplitAll_SkipModes(t *testing.T) {
	for _, mode := range []Mode{ModeSkipIfAnyFileExists, ModeSkipIfEverSplit} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			mem := storage.NewMemory()
			seedBatch(mem, 4)
			s := newTestSplitter(t, mem, Options{})

			_, err := s.SplitOne(ctx, rawRoot+"/s01.txt")
			require.NoError(t, err)

			report, err := s.SplitAll(ctx, rawRoot, mode)

			require.NoError(t, err)
			split, skipped, failed := report.Counts()
			assert.Equal(t, 3, split)
			assert.Equal(t, 1, skipped)
			assert.Zero(t, failed)

			again, err := s.SplitAll(ctx, rawRoot, mode)
			require.NoError(t, err)
			split, skipped, _ = again.Counts()
			assert.Zero(t, split)
			assert.Equal(t, 4, skipped)
		})
	}
}

func TestSplitAll_RespectsConcurrencyCeiling(t *testing.T) {
	mem := storage.NewMemory()
	seedBatch(mem, 20)
	backend := &gaugeBackend{Backend: mem}
	s := newTestSplitter(t, backend, Options{Concurrency: 3})

	report, err := s.SplitAll(context.Background(), rawRoot, ModeAlways)

	require.NoError(t, err)
	assert.Len(t, report.Outcomes, 20)
	assert.LessOrEqual(t, backend.peak.Load(), int32(3))
	assert.Len(t, mem.Keys("data/histories/split/"), 40)
}

func TestSplitAll_FiltersBySourceExt(t *testing.T) {
	mem := storage.NewMemory()
	seedBatch(mem, 2)
	mem.Put(rawRoot+"/", nil)
	mem.Put(rawRoot+"/notes.md", []byte("*** NEW HAND #1 ***\n"))
	s := newTestSplitter(t, mem, Options{SourceExt: ".txt"})

	report, err := s.SplitAll(context.Background(), rawRoot, ModeAlways)

	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.True(t, strings.HasSuffix(o.Source, ".txt"))
	}
}

func TestSplitAll_RecoversFromPanic(t *testing.T) {
	mem := storage.NewMemory()
	seedBatch(mem, 3)
	s := newTestSplitter(t, &panicBackend{Backend: mem, location: rawRoot + "/s00.txt"}, Options{})

	report, err := s.SplitAll(context.Background(), rawRoot, ModeAlways)

	require.NoError(t, err)
	_, _, failed := report.Counts()
	assert.Equal(t, 1, failed)
	assert.ErrorContains(t, report.Failures()[0].Err, "panic")
	assert.Equal(t, "data/histories/split/s00", report.Failures()[0].DestinationDir)
}

func TestSplitAll_CancelledContext(t *testing.T) {
	mem := storage.NewMemory()
	seedBatch(mem, 3)
	s := newTestSplitter(t, mem, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SplitAll(ctx, rawRoot, ModeAlways)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitAll_RunID(t *testing.T) {
	mem := storage.NewMemory()
	s := newTestSplitter(t, mem, Options{})

	report, err := s.SplitAll(WithRunID(context.Background(), "evt-123"), rawRoot, ModeAlways)
	require.NoError(t, err)
	assert.Equal(t, "evt-123", report.RunID)
	assert.Empty(t, report.Outcomes)

	report, err = s.SplitAll(context.Background(), rawRoot, ModeAlways)
	require.NoError(t, err)
	assert.Len(t, report.RunID, 36)
}

func TestSplitAll_RejectsUnknownMode(t *testing.T) {
	s := newTestSplitter(t, storage.NewMemory(), Options{})

	_, err := s.SplitAll(context.Background(), rawRoot, Mode("nope"))

	assert.Error(t, err)
}
