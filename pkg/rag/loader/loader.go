// Package loader turns raw uploaded bytes into text segments, selected by the
// declared MIME type.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

const (
	TypePDF  = "application/pdf"
	TypeText = "text/plain"
	TypeCSV  = "text/csv"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var ErrUnsupportedType = errors.New("unsupported document type")

// Loader extracts ordered text segments from one document.
type Loader interface {
	Load(ctx context.Context, data []byte) ([]string, error)
}

type LoaderFunc func(ctx context.Context, data []byte) ([]string, error)

func (f LoaderFunc) Load(ctx context.Context, data []byte) ([]string, error) {
	return f(ctx, data)
}

type Registry struct {
	loaders map[string]Loader
}

func NewRegistry() *Registry {
	return &Registry{loaders: map[string]Loader{}}
}

// Default registers the four supported document types.
func Default() *Registry {
	r := NewRegistry()
	r.Register(TypePDF, LoaderFunc(loadPDF))
	r.Register(TypeText, LoaderFunc(loadText))
	r.Register(TypeCSV, LoaderFunc(loadCSV))
	r.Register(TypeDOCX, LoaderFunc(loadDOCX))
	return r
}

func (r *Registry) Register(mimeType string, l Loader) {
	r.loaders[normalizeType(mimeType)] = l
}

func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.loaders))
	for t := range r.loaders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Lookup returns the loader for a declared type. Parameters such as charset
// are ignored.
func (r *Registry) Lookup(declaredType string) (Loader, error) {
	l, ok := r.loaders[normalizeType(declaredType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, declaredType)
	}
	return l, nil
}

var extensionTypes = map[string]string{
	".pdf":  TypePDF,
	".txt":  TypeText,
	".md":   TypeText,
	".csv":  TypeCSV,
	".docx": TypeDOCX,
}

// TypeForFilename guesses a declared type from the file extension, for
// clients that upload without one. It returns "" when unknown.
func TypeForFilename(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

func normalizeType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(t))
}

func loadText(ctx context.Context, data []byte) ([]string, error) {
	docs, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, err
	}
	return contents(docs), nil
}

// loadCSV yields one segment per row, rendered as "column: value" lines.
func loadCSV(ctx context.Context, data []byte) ([]string, error) {
	docs, err := documentloaders.NewCSV(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, err
	}
	return contents(docs), nil
}

func contents(docs []schema.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		out = append(out, d.PageContent)
	}
	return out
}
