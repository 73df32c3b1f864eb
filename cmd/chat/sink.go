package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// terminalSink prints replies as they arrive. Reasoning blocks get their own
// dimmed "Thinking" block; answer text is printed once and never rewritten.
type terminalSink struct {
	out   io.Writer
	shown string // prefix of the undecided buffer already printed

	label *color.Color
	think *color.Color
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{
		out:   out,
		label: color.New(color.FgMagenta, color.Bold),
		think: color.New(color.Faint, color.Italic),
	}
}

func (s *terminalSink) Reasoning(text string) {
	s.label.Fprintln(s.out, "\n🤔 Thinking:")
	s.think.Fprintln(s.out, strings.TrimSpace(text))
	fmt.Fprintln(s.out)
	s.shown = ""
}

func (s *terminalSink) Answer(text string) {
	fmt.Fprint(s.out, strings.TrimPrefix(text, s.shown))
	s.shown = ""
}

// Pending prints new text up to the first '<', which may still turn into a
// reasoning tag.
func (s *terminalSink) Pending(text string) {
	if !strings.HasPrefix(text, s.shown) {
		return
	}
	cut := len(text)
	if i := strings.IndexByte(text, '<'); i >= 0 {
		cut = i
	}
	if cut <= len(s.shown) {
		return
	}
	fmt.Fprint(s.out, text[len(s.shown):cut])
	s.shown = text[:cut]
}

func (s *terminalSink) Done() {
	fmt.Fprintln(s.out)
	s.shown = ""
}
