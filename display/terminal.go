package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Terminal draws frames as a bordered panel, redrawing in place.
type Terminal struct {
	mx     sync.Mutex
	out    *termenv.Output
	clear  bool
	title  lipgloss.Style
	panel  lipgloss.Style
	events lipgloss.Style
}

// NewTerminal writes to w. When clear is set the screen is wiped before every frame,
// which only makes sense when nothing else writes to the same terminal.
func NewTerminal(w io.Writer, clear bool) *Terminal {
	out := termenv.NewOutput(w)
	renderer := lipgloss.NewRenderer(w)
	return &Terminal{
		out:    out,
		clear:  clear,
		title:  renderer.NewStyle().Bold(true),
		panel:  renderer.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		events: renderer.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

func (t *Terminal) Paint(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	styled := make([]string, len(lines))
	styled[0] = t.title.Render(lines[0])
	for i := 1; i < len(lines); i++ {
		styled[i] = lines[i]
		if i > 1 {
			styled[i] = t.events.Render(lines[i])
		}
	}
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.clear {
		t.out.ClearScreen()
	}
	_, err := fmt.Fprintln(t.out, t.panel.Render(strings.Join(styled, "\n")))
	if err != nil {
		return fmt.Errorf("could not write frame: %w", err)
	}
	return nil
}
