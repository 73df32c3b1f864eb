// Package thinktag splits model output into reasoning and answer text.
//
// Reasoning models wrap their chain of thought in <think>...</think>. The
// Decoder consumes raw bytes in arbitrary chunks (boundaries may fall inside a
// multi-byte character or inside a tag) and emits Segments as soon as they are
// fully known.
//
// Edge-case policy:
//   - A </think> with no <think> before it is ordinary text.
//   - Nesting is not supported: the leftmost <think> is closed by the first
//     </think> after it, whatever lies in between.
//   - An unterminated <think> at end of stream is flushed as answer text.
//   - Pending snapshots are for progressive display only. A renderer that has
//     already shown part of a snapshot cannot take it back when a tag later
//     completes inside it; the decoder never rewinds committed output.
package thinktag

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	OpenTag  = "<think>"
	CloseTag = "</think>"
)

// Kind identifies what a Segment carries.
type Kind int

const (
	// Answer is committed answer text. Concatenating every Answer segment of a
	// stream yields the input with all complete reasoning blocks removed.
	Answer Kind = iota
	// Reasoning is the inner text of one complete <think> block.
	Reasoning
	// Pending is a snapshot of the undecided buffer. It is not committed and
	// will be repeated, extended, or superseded by later segments.
	Pending
)

func (k Kind) String() string {
	switch k {
	case Answer:
		return "answer"
	case Reasoning:
		return "reasoning"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

type Segment struct {
	Kind Kind
	Text string
}

// State reports whether the buffer currently holds an open reasoning block.
type State int

const (
	OutsideTag State = iota
	InsideTag
)

// Decoder is the per-stream state machine. It is not safe for concurrent use.
type Decoder struct {
	utf8 *encoding.Decoder
	tail []byte // incomplete trailing UTF-8 sequence
	buf  string // decoded text not yet committed
	dst  []byte
}

func NewDecoder() *Decoder {
	return &Decoder{utf8: unicode.UTF8.NewDecoder()}
}

// State derives the tag state from the buffer: InsideTag while an opened block
// is waiting for its closing tag.
func (d *Decoder) State() State {
	if strings.Contains(d.buf, OpenTag) {
		return InsideTag
	}
	return OutsideTag
}

// Buffered returns the decoded text that has not been committed yet.
func (d *Decoder) Buffered() string {
	return d.buf
}

// Write feeds one chunk and returns the segments it completes, in order. The
// last segment is a Pending snapshot whenever the buffer is non-empty.
func (d *Decoder) Write(chunk []byte) []Segment {
	d.buf += d.decode(chunk, false)

	out := d.extract(nil)
	if d.buf != "" {
		out = append(out, Segment{Kind: Pending, Text: d.buf})
	}
	return out
}

// Flush ends the stream: any dangling partial character is resolved, remaining
// complete blocks are extracted, and everything else becomes answer text. The
// decoder is reset and may be reused.
func (d *Decoder) Flush() []Segment {
	d.buf += d.decode(nil, true)

	out := d.extract(nil)
	if d.buf != "" {
		out = append(out, Segment{Kind: Answer, Text: d.buf})
	}

	d.buf = ""
	d.tail = nil
	d.utf8.Reset()
	return out
}

// extract removes every complete block from the front of the buffer. Text
// before each <think> is committed as answer text.
func (d *Decoder) extract(out []Segment) []Segment {
	for {
		open := strings.Index(d.buf, OpenTag)
		if open < 0 {
			return out
		}
		innerStart := open + len(OpenTag)
		closeRel := strings.Index(d.buf[innerStart:], CloseTag)
		if closeRel < 0 {
			return out
		}

		if open > 0 {
			out = append(out, Segment{Kind: Answer, Text: d.buf[:open]})
		}
		out = append(out, Segment{Kind: Reasoning, Text: d.buf[innerStart : innerStart+closeRel]})
		d.buf = d.buf[innerStart+closeRel+len(CloseTag):]
	}
}

// decode converts bytes to text, carrying an incomplete trailing sequence over
// to the next call. Invalid bytes become U+FFFD; incomplete ones are held back
// unless final is set.
func (d *Decoder) decode(chunk []byte, final bool) string {
	src := chunk
	if len(d.tail) > 0 {
		src = append(d.tail, chunk...)
		d.tail = nil
	}
	if len(src) == 0 {
		return ""
	}

	// Worst case every byte is invalid and expands to a 3-byte U+FFFD.
	if need := 3*len(src) + utf8.UTFMax; cap(d.dst) < need {
		d.dst = make([]byte, need)
	}
	dst := d.dst[:cap(d.dst)]

	var sb strings.Builder
	for len(src) > 0 {
		nDst, nSrc, err := d.utf8.Transform(dst, src, final)
		sb.Write(dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortSrc):
			d.tail = append([]byte(nil), src...)
			return sb.String()
		case errors.Is(err, transform.ErrShortDst) && nSrc > 0:
		default:
			// Unreachable with a UTF-8 decoder and a large enough dst; keep
			// the stream alive rather than loop.
			sb.WriteString(string(utf8.RuneError))
			return sb.String()
		}
	}
	return sb.String()
}

// Decode runs the state machine over a complete text in one pass, returning
// the reasoning blocks and the answer text. Used for non-streaming replies.
func Decode(text string) (reasoning []string, answer string) {
	d := NewDecoder()
	var sb strings.Builder
	collect := func(segs []Segment) {
		for _, s := range segs {
			switch s.Kind {
			case Reasoning:
				reasoning = append(reasoning, s.Text)
			case Answer:
				sb.WriteString(s.Text)
			}
		}
	}
	collect(d.Write([]byte(text)))
	collect(d.Flush())
	return reasoning, sb.String()
}
