package directory

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/otaviofr/convo/internal/metrics"
	"github.com/otaviofr/convo/internal/store"
)

// ErrSuperseded is returned when a newer search was started before this
// one finished. The result must be discarded, never rendered.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Searcher wraps a Directory with a monotonic sequence so that slow
// responses for old queries cannot clobber the result of a newer one.
// Each UI search box should own exactly one Searcher.
type Searcher struct {
	dir *Directory
	seq atomic.Uint64
}

// NewSearcher creates a searcher for the given directory.
func NewSearcher(dir *Directory) *Searcher {
	return &Searcher{dir: dir}
}

// Search runs a directory search and checks, after the response arrives,
// whether a newer Search call was issued in the meantime. If so the
// result is dropped and ErrSuperseded is returned instead.
func (s *Searcher) Search(ctx context.Context, query string) (*store.Identity, error) {
	mine := s.seq.Add(1)
	id, err := s.dir.Search(ctx, query)
	if s.seq.Load() != mine {
		metrics.StaleSearchesDropped.Inc()
		return nil, ErrSuperseded
	}
	return id, err
}
