package splitter

import (
	"context"

	"github.com/Lllllllleong/pkrsplitter/internal/hands"
	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/Lllllllleong/pkrsplitter/internal/storage"
)

// Ledger remembers which sources have been split.
type Ledger interface {
	// WasSplit reports whether source has ever been split successfully.
	WasSplit(ctx context.Context, source string) (bool, error)
	// Record stores the outcome of one split.
	Record(ctx context.Context, run models.SplitRun) error
}

// backendLedger answers from the backend itself: a source was split when its
// split directory exists. It records nothing.
type backendLedger struct {
	backend storage.Backend
	mapper  hands.Mapper
}

func (l backendLedger) WasSplit(ctx context.Context, source string) (bool, error) {
	dir := l.mapper.Dir(source)
	if dc, ok := l.backend.(storage.DirChecker); ok {
		return dc.DirExists(ctx, dir)
	}
	// Object stores have no directories; the prefix exists once an object does.
	return l.backend.ExistsUnder(ctx, dir+"/")
}

func (backendLedger) Record(context.Context, models.SplitRun) error { return nil }
