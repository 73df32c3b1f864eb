package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Window is one slice of a source text. Offset counts characters (runes) from
// the start of the source.
type Window struct {
	Text   string
	Offset int
}

// Splitter turns one loaded text segment into windows. Implementations must be
// deterministic.
type Splitter interface {
	Split(text string) ([]Window, error)
}

// New returns the splitter registered under name: "window" (default) or
// "recursive".
func New(name string, size, overlap int) (Splitter, error) {
	switch name {
	case "", "window":
		return WindowSplitter{Size: size, Overlap: overlap}, nil
	case "recursive":
		return NewRecursiveSplitter(size, overlap), nil
	default:
		return nil, fmt.Errorf("unknown splitter: %s", name)
	}
}

// WindowSplitter cuts fixed windows of Size characters, each starting
// Size-Overlap characters after the previous one.
type WindowSplitter struct {
	Size    int
	Overlap int
}

func (s WindowSplitter) Split(text string) ([]Window, error) {
	return SplitText(text, s.Size, s.Overlap), nil
}

// SplitText splits a long string into chunks of 'chunkSize' characters.
// It includes an 'overlap' to preserve context at boundaries.
// This is a simple character-based splitter; it never looks at words.
func SplitText(text string, chunkSize int, overlap int) []Window {
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultSize
	}

	runes := []rune(text)
	totalLen := len(runes)
	if totalLen <= chunkSize {
		return []Window{{Text: text, Offset: 0}}
	}

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize // fallback if overlap >= chunkSize
	}

	var chunks []Window
	for i := 0; i < totalLen; i += step {
		end := i + chunkSize
		if end > totalLen {
			end = totalLen
		}

		chunks = append(chunks, Window{Text: string(runes[i:end]), Offset: i})

		if end == totalLen {
			break
		}
	}

	return chunks
}

// RecursiveSplitter prefers paragraph, line and word boundaries, falling back
// to characters, the way the original desktop client split documents.
type RecursiveSplitter struct {
	inner textsplitter.RecursiveCharacter
}

func NewRecursiveSplitter(size, overlap int) RecursiveSplitter {
	return RecursiveSplitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}
}

func (s RecursiveSplitter) Split(text string) ([]Window, error) {
	parts, err := s.inner.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("recursive split: %w", err)
	}

	windows := make([]Window, 0, len(parts))
	searchFrom := 0
	for _, p := range parts {
		// Chunks come back in source order, possibly trimmed; locate each one
		// at or after the previous match to recover its offset.
		idx := strings.Index(text[searchFrom:], p)
		offset := -1
		if idx >= 0 {
			byteOffset := searchFrom + idx
			offset = utf8.RuneCountInString(text[:byteOffset])
			searchFrom = byteOffset
		}
		windows = append(windows, Window{Text: p, Offset: offset})
	}
	return windows, nil
}
