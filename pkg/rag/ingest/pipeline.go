// Package ingest loads uploaded documents, splits them into overlapping
// windows, embeds every window and builds a retrieval index from the result.
//
// Per-file problems (oversize, unknown type, unreadable content) are reported
// and skipped. A failing embedding backend aborts the whole batch.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/rag/chunk"
	"ai-chat-relay-be/pkg/rag/index"
	"ai-chat-relay-be/pkg/rag/loader"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxFileBytes int64 = 200 << 20
	DefaultConcurrency        = 4

	// probeText is embedded once before any window, to fail fast when the
	// embedding backend is down.
	probeText = "test connection"
)

// File is one uploaded document. Open is called at most once, and only for
// files within the size cap.
type File struct {
	Name         string
	DeclaredType string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

func BytesFile(name, declaredType string, data []byte) File {
	return File{
		Name:         name,
		DeclaredType: declaredType,
		Size:         int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

type FileReport struct {
	File     string          `json:"file"`
	Type     string          `json:"type"`
	Segments int             `json:"segments"`
	Windows  int             `json:"windows"`
	Error    *IngestionError `json:"error,omitempty"`
}

func (r FileReport) OK() bool {
	return r.Error == nil
}

type Result struct {
	// Index is nil when no document produced any window.
	Index   index.Searcher
	Reports []FileReport
	Windows int
}

// Loaded counts files that were read and split successfully.
func (r *Result) Loaded() int {
	n := 0
	for _, rep := range r.Reports {
		if rep.OK() {
			n++
		}
	}
	return n
}

type Option func(*Pipeline)

func WithLoaders(r *loader.Registry) Option {
	return func(p *Pipeline) { p.loaders = r }
}

func WithSplitter(s chunk.Splitter) Option {
	return func(p *Pipeline) { p.splitter = s }
}

func WithMaxFileBytes(n int64) Option {
	return func(p *Pipeline) { p.maxFileBytes = n }
}

func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.concurrency = n }
}

type Pipeline struct {
	embedder     embedding.EmbeddingProvider
	builder      index.Builder
	loaders      *loader.Registry
	splitter     chunk.Splitter
	maxFileBytes int64
	concurrency  int
}

func New(embedder embedding.EmbeddingProvider, builder index.Builder, opts ...Option) *Pipeline {
	p := &Pipeline{
		embedder:     embedder,
		builder:      builder,
		loaders:      loader.Default(),
		splitter:     chunk.WindowSplitter{Size: chunk.DefaultSize, Overlap: chunk.DefaultOverlap},
		maxFileBytes: DefaultMaxFileBytes,
		concurrency:  DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

func (p *Pipeline) MaxFileBytes() int64 {
	return p.maxFileBytes
}

// Ingest builds a fresh index from files. The only error it returns is an
// *EmbeddingConnectivityError (or a context error); everything file-specific
// lands in Result.Reports.
func (p *Pipeline) Ingest(ctx context.Context, files []File) (*Result, error) {
	res := &Result{Reports: make([]FileReport, 0, len(files))}

	var windows []index.DocumentWindow
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep, ws := p.loadFile(ctx, f)
		res.Reports = append(res.Reports, rep)
		windows = append(windows, ws...)
	}

	if len(windows) == 0 {
		return res, nil
	}

	if _, err := p.embedder.Generate(ctx, probeText); err != nil {
		return nil, &EmbeddingConnectivityError{Cause: err}
	}

	if err := p.embedAll(ctx, windows); err != nil {
		return nil, err
	}

	idx, err := p.builder.Build(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	res.Index = idx
	res.Windows = len(windows)
	return res, nil
}

func (p *Pipeline) loadFile(ctx context.Context, f File) (FileReport, []index.DocumentWindow) {
	rep := FileReport{File: f.Name, Type: f.DeclaredType}
	fail := func(kind ErrorKind, err error) (FileReport, []index.DocumentWindow) {
		rep.Error = &IngestionError{File: f.Name, Kind: kind, Err: err}
		return rep, nil
	}

	if f.Size > p.maxFileBytes {
		return fail(KindTooLarge, fmt.Errorf("%d bytes exceeds the %d byte limit", f.Size, p.maxFileBytes))
	}

	l, err := p.loaders.Lookup(f.DeclaredType)
	if err != nil {
		return fail(KindUnsupportedType, err)
	}

	data, err := readAll(f, p.maxFileBytes)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return fail(KindTooLarge, err)
		}
		return fail(KindLoadFailed, err)
	}

	segments, err := l.Load(ctx, data)
	if err != nil {
		return fail(KindLoadFailed, err)
	}

	var windows []index.DocumentWindow
	for i, seg := range segments {
		parts, err := p.splitter.Split(seg)
		if err != nil {
			return fail(KindLoadFailed, fmt.Errorf("split segment %d: %w", i, err))
		}
		for _, w := range parts {
			windows = append(windows, index.DocumentWindow{
				Text:    w.Text,
				Source:  f.Name,
				Segment: i,
				Offset:  w.Offset,
			})
		}
	}

	rep.Segments = len(segments)
	rep.Windows = len(windows)
	return rep, windows
}

var errTooLarge = errors.New("file exceeds size limit")

// readAll reads the file, refusing to buffer more than limit bytes even when
// the declared size was wrong.
func readAll(f File, limit int64) ([]byte, error) {
	if f.Open == nil {
		return nil, errors.New("file has no content")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", errTooLarge, limit)
	}
	return data, nil
}

// embedAll fills in every window's embedding in place. Order is preserved
// because each goroutine writes only its own slot.
func (p *Pipeline) embedAll(ctx context.Context, windows []index.DocumentWindow) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range windows {
		g.Go(func() error {
			res, err := p.embedder.Generate(gCtx, windows[i].Text)
			if err != nil {
				return err
			}
			windows[i].Embedding = res.Embedding.Values
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &EmbeddingConnectivityError{Cause: err}
	}
	return nil
}
