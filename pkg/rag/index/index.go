package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DocumentWindow is one embedded slice of an uploaded document. Windows are
// immutable once built into an index.
type DocumentWindow struct {
	Text      string
	Source    string // file name
	Segment   int    // loader segment, e.g. PDF page or CSV row
	Offset    int    // characters from the start of the segment
	Embedding []float32
}

type Hit struct {
	Window DocumentWindow
	Score  float32
}

// Searcher is a read-only retrieval index.
type Searcher interface {
	// Search returns at most k windows, best first. Equal scores keep
	// insertion order.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Len() int
}

// Builder produces a fresh Searcher from a complete set of windows.
type Builder interface {
	Build(ctx context.Context, windows []DocumentWindow) (Searcher, error)
}

// Discarder is implemented by indexes that hold external resources to release
// once they have been replaced.
type Discarder interface {
	Discard(ctx context.Context) error
}

// MemoryIndex keeps windows in insertion order and scans them linearly.
type MemoryIndex struct {
	windows []DocumentWindow
}

var _ Searcher = (*MemoryIndex)(nil)

func NewMemoryIndex(windows []DocumentWindow) *MemoryIndex {
	return &MemoryIndex{windows: append([]DocumentWindow(nil), windows...)}
}

func (m *MemoryIndex) Len() int {
	return len(m.windows)
}

func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(m.windows) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(m.windows))
	for i, w := range m.windows {
		score, err := cosine(query, w.Embedding)
		if err != nil {
			return nil, fmt.Errorf("window %d of %s: %w", i, w.Source, err)
		}
		hits = append(hits, Hit{Window: w, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

type MemoryBuilder struct{}

func (MemoryBuilder) Build(_ context.Context, windows []DocumentWindow) (Searcher, error) {
	return NewMemoryIndex(windows), nil
}

func cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

// Store holds the process-wide current index. Readers always see either the
// previous index or a fully built new one.
type Store struct {
	current atomic.Pointer[holder]
}

type holder struct {
	s Searcher
}

func NewStore() *Store {
	return &Store{}
}

// Current returns the active index, or nil when none has been built.
func (st *Store) Current() Searcher {
	if h := st.current.Load(); h != nil {
		return h.s
	}
	return nil
}

// Swap installs s (which may be nil to clear) and returns the index it replaced.
func (st *Store) Swap(s Searcher) Searcher {
	var next *holder
	if s != nil {
		next = &holder{s: s}
	}
	if old := st.current.Swap(next); old != nil {
		return old.s
	}
	return nil
}
