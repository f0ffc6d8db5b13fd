package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/veridoc/internal/verify"
)

// Progress prints verification events as they arrive. It is safe for
// concurrent use and implements verify.Sink.
type Progress struct {
	mu   sync.Mutex
	w    io.Writer
	opts ProgressOptions
	// seen tracks how much streamed content has been echoed per unit.
	seen map[string]int
}

// ProgressOptions controls what Progress prints.
type ProgressOptions struct {
	NoColor bool
	// Stream echoes partial model output as it arrives.
	Stream bool
	// JSON writes one JSON object per event instead of text lines.
	JSON bool
}

// NewProgress returns a Progress writing to w.
func NewProgress(w io.Writer, opts ProgressOptions) *Progress {
	return &Progress{w: w, opts: opts, seen: map[string]int{}}
}

// Emit implements verify.Sink.
func (p *Progress) Emit(e verify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opts.JSON {
		if e.Kind == verify.EventStreamingContent && !p.opts.Stream {
			return
		}
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		fmt.Fprintf(p.w, "%s\n", data)
		return
	}

	switch e.Kind {
	case verify.EventStreamingContent:
		if !p.opts.Stream {
			return
		}
		n := p.seen[e.Unit]
		if len(e.Content) > n {
			fmt.Fprint(p.w, e.Content[n:])
			p.seen[e.Unit] = len(e.Content)
		}
		return
	case verify.EventStreamingComplete:
		if p.opts.Stream && p.seen[e.Unit] > 0 {
			fmt.Fprintln(p.w)
		}
		delete(p.seen, e.Unit)
	case verify.EventStreamingFallback:
		delete(p.seen, e.Unit)
	}

	prefix := e.Time.Format("15:04:05")
	line := e.Message
	if e.Unit != "" && e.Kind != verify.EventUnitProgress {
		line = e.Unit + ": " + line
	}
	if e.Kind == verify.EventUnitProgress {
		line = fmt.Sprintf("[%d/%d] %s", e.Current, e.Total, line)
	}
	fmt.Fprintf(p.w, "%s %s\n", p.paint(lipgloss.Color("244"), prefix), p.paint(kindColor(e.Kind), line))
}

func (p *Progress) paint(c lipgloss.Color, s string) string {
	if p.opts.NoColor || c == "" {
		return s
	}
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

func kindColor(k verify.EventKind) lipgloss.Color {
	switch k {
	case verify.EventVerificationComplete:
		return lipgloss.Color("42")
	case verify.EventVerificationError, verify.EventError:
		return lipgloss.Color("196")
	case verify.EventCacheHit:
		return lipgloss.Color("33")
	case verify.EventStreamingFallback:
		return lipgloss.Color("220")
	case verify.EventBatchStart, verify.EventBatchComplete:
		return lipgloss.Color("39")
	}
	return ""
}
