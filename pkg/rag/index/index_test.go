package index

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windows() []DocumentWindow {
	return []DocumentWindow{
		{Text: "cats", Source: "a.txt", Embedding: []float32{1, 0}},
		{Text: "dogs", Source: "a.txt", Offset: 800, Embedding: []float32{0, 1}},
		{Text: "cats again", Source: "b.txt", Embedding: []float32{2, 0}},
		{Text: "mixed", Source: "b.txt", Offset: 800, Embedding: []float32{1, 1}},
	}
}

func texts(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Window.Text
	}
	return out
}

func TestMemoryIndex_SearchOrdersBySimilarity(t *testing.T) {
	idx := NewMemoryIndex(windows())

	hits, err := idx.Search(context.Background(), []float32{1, 0.1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"cats", "cats again", "mixed"}, texts(hits))
	assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-6)
}

func TestMemoryIndex_TiesKeepInsertionOrder(t *testing.T) {
	idx := NewMemoryIndex(windows())

	for i := 0; i < 20; i++ {
		hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Equal(t, []string{"cats", "cats again"}, texts(hits))
	}
}

func TestMemoryIndex_Limits(t *testing.T) {
	idx := NewMemoryIndex(windows())

	hits, err := idx.Search(context.Background(), []float32{0, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	hits, err = idx.Search(context.Background(), []float32{0, 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = NewMemoryIndex(nil).Search(context.Background(), []float32{0, 1}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	_, err := NewMemoryIndex(windows()).Search(context.Background(), []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryIndex_CopiesInput(t *testing.T) {
	ws := windows()
	idx := NewMemoryIndex(ws)
	ws[0].Text = "mutated"

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "cats", hits[0].Window.Text)
}

func TestStore_Swap(t *testing.T) {
	st := NewStore()
	assert.Nil(t, st.Current())

	first := NewMemoryIndex(windows()[:1])
	assert.Nil(t, st.Swap(first))
	assert.Same(t, first, st.Current())

	second := NewMemoryIndex(windows())
	assert.Same(t, first, st.Swap(second))
	assert.Same(t, second, st.Current())

	assert.Same(t, second, st.Swap(nil))
	assert.Nil(t, st.Current())
}

func TestStore_ConcurrentReadersSeeWholeIndexes(t *testing.T) {
	st := NewStore()
	full := windows()

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if s := st.Current(); s != nil {
					n := s.Len()
					assert.True(t, n == 1 || n == len(full), "saw partial index of %d windows", n)
				}
			}
		}()
	}
	for i := 0; i < 500; i++ {
		if i%2 == 0 {
			st.Swap(NewMemoryIndex(full[:1]))
		} else {
			st.Swap(NewMemoryIndex(full))
		}
	}
	wg.Wait()
}
