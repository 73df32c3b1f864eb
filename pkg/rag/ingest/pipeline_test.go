package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/rag/index"
	"ai-chat-relay-be/pkg/rag/loader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps text to a 2-d vector: (count of 'a', count of 'b').
type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string
	fail  func(text string) error
}

func (f *fakeEmbedder) Generate(_ context.Context, text string) (*embedding.EmbeddingResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(text); err != nil {
			return nil, err
		}
	}
	vec := []float32{float32(strings.Count(text, "a")), float32(strings.Count(text, "b"))}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: vec}}, nil
}

func document(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte("abcdefghij"[i%10])
	}
	return b.String()
}

func TestIngest_WindowsA2400CharDocument(t *testing.T) {
	emb := &fakeEmbedder{}
	p := New(emb, index.MemoryBuilder{})

	res, err := p.Ingest(context.Background(), []File{
		BytesFile("doc.txt", loader.TypeText, []byte(document(2400))),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Index)
	assert.Equal(t, 3, res.Windows)
	assert.Equal(t, 3, res.Index.Len())
	require.Len(t, res.Reports, 1)
	assert.True(t, res.Reports[0].OK())
	assert.Equal(t, 3, res.Reports[0].Windows)

	// probe plus one call per window
	assert.Len(t, emb.calls, 4)
	assert.Contains(t, emb.calls, probeText)

	hits, err := res.Index.Search(context.Background(), []float32{1, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	offsets := map[int]string{}
	for _, h := range hits {
		assert.Equal(t, "doc.txt", h.Window.Source)
		assert.Len(t, h.Window.Embedding, 2)
		offsets[h.Window.Offset] = h.Window.Text
	}
	require.Contains(t, offsets, 0)
	require.Contains(t, offsets, 800)
	require.Contains(t, offsets, 1600)
	assert.Equal(t, offsets[0][800:], offsets[800][:200])
	assert.Equal(t, offsets[800][800:], offsets[1600][:200])
}

func TestIngest_OversizeFileIsSkipped(t *testing.T) {
	emb := &fakeEmbedder{}
	p := New(emb, index.MemoryBuilder{})

	big := make([]byte, 201<<20)
	res, err := p.Ingest(context.Background(), []File{
		BytesFile("huge.txt", loader.TypeText, big),
		BytesFile("small.txt", loader.TypeText, []byte("aaa bbb")),
	})
	require.NoError(t, err)
	require.Len(t, res.Reports, 2)

	require.NotNil(t, res.Reports[0].Error)
	assert.Equal(t, KindTooLarge, res.Reports[0].Error.Kind)
	assert.True(t, res.Reports[1].OK())
	assert.Equal(t, 1, res.Loaded())

	require.NotNil(t, res.Index)
	hits, err := res.Index.Search(context.Background(), []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "small.txt", hits[0].Window.Source)
}

func TestIngest_UnderstatedSizeIsCaughtOnRead(t *testing.T) {
	p := New(&fakeEmbedder{}, index.MemoryBuilder{}, WithMaxFileBytes(10))

	f := BytesFile("liar.txt", loader.TypeText, []byte(document(50)))
	f.Size = 5
	res, err := p.Ingest(context.Background(), []File{f})
	require.NoError(t, err)
	require.NotNil(t, res.Reports[0].Error)
	assert.Equal(t, KindTooLarge, res.Reports[0].Error.Kind)
	assert.Nil(t, res.Index)
}

func TestIngest_UnsupportedAndBrokenFiles(t *testing.T) {
	p := New(&fakeEmbedder{}, index.MemoryBuilder{})

	res, err := p.Ingest(context.Background(), []File{
		BytesFile("img.png", "image/png", []byte{0x89, 'P', 'N', 'G'}),
		BytesFile("bad.docx", loader.TypeDOCX, []byte("not a zip")),
		BytesFile("notes.txt", "text/plain; charset=utf-8", []byte("abab")),
	})
	require.NoError(t, err)
	require.Len(t, res.Reports, 3)
	assert.Equal(t, KindUnsupportedType, res.Reports[0].Error.Kind)
	assert.ErrorIs(t, res.Reports[0].Error, loader.ErrUnsupportedType)
	assert.Equal(t, KindLoadFailed, res.Reports[1].Error.Kind)
	assert.True(t, res.Reports[2].OK())
	assert.Equal(t, 1, res.Index.Len())
}

func TestIngest_NothingLoadedReturnsNoIndex(t *testing.T) {
	emb := &fakeEmbedder{}
	p := New(emb, index.MemoryBuilder{})

	res, err := p.Ingest(context.Background(), []File{
		BytesFile("img.png", "image/png", nil),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Index)
	assert.Zero(t, res.Loaded())
	assert.Empty(t, emb.calls, "embedder must not be probed without windows")

	res, err = p.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, res.Index)
}

func TestIngest_ProbeFailureAbortsBatch(t *testing.T) {
	down := &embedding.ConnectivityError{Endpoint: "http://localhost:11434/api/embeddings", Cause: errors.New("connection refused")}
	emb := &fakeEmbedder{fail: func(string) error { return down }}
	p := New(emb, index.MemoryBuilder{})

	res, err := p.Ingest(context.Background(), []File{
		BytesFile("a.txt", loader.TypeText, []byte("aaaa")),
	})
	assert.Nil(t, res)

	var connErr *EmbeddingConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, connErr.Unreachable())
	assert.Equal(t, []string{probeText}, emb.calls)
}

func TestIngest_WindowEmbeddingFailureAbortsBatch(t *testing.T) {
	emb := &fakeEmbedder{fail: func(text string) error {
		if strings.HasPrefix(text, "b") {
			return errors.New("model crashed")
		}
		return nil
	}}
	p := New(emb, index.MemoryBuilder{}, WithConcurrency(2))

	_, err := p.Ingest(context.Background(), []File{
		BytesFile("a.txt", loader.TypeText, []byte("aaaa")),
		BytesFile("b.txt", loader.TypeText, []byte("bbbb")),
	})

	var connErr *EmbeddingConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.False(t, connErr.Unreachable())
}

func TestIngest_PreservesWindowOrder(t *testing.T) {
	p := New(&fakeEmbedder{}, index.MemoryBuilder{}, WithConcurrency(8))

	files := make([]File, 0, 20)
	for i := 0; i < 20; i++ {
		files = append(files, BytesFile(string(rune('a'+i))+".txt", loader.TypeText, []byte("ab")))
	}
	res, err := p.Ingest(context.Background(), files)
	require.NoError(t, err)

	// every window has the same embedding, so ties expose insertion order
	hits, err := res.Index.Search(context.Background(), []float32{1, 1}, 20)
	require.NoError(t, err)
	for i, h := range hits {
		assert.Equal(t, files[i].Name, h.Window.Source)
	}
}

func TestIngest_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&fakeEmbedder{}, index.MemoryBuilder{}).Ingest(ctx, []File{
		BytesFile("a.txt", loader.TypeText, []byte("a")),
	})
	assert.ErrorIs(t, err, context.Canceled)
}
