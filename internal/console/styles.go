package console

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Color modes accepted by NewRenderer.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Palette holds the console colors.
type Palette struct {
	PeerA   lipgloss.Color
	PeerB   lipgloss.Color
	System  lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color
	Success lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultPalette uses the basic ANSI colors so it reads on any terminal.
func DefaultPalette() Palette {
	return Palette{
		PeerA:   lipgloss.Color("6"), // cyan
		PeerB:   lipgloss.Color("2"), // green
		System:  lipgloss.Color("3"), // yellow
		Error:   lipgloss.Color("1"), // red
		Info:    lipgloss.Color("4"), // blue
		Success: lipgloss.Color("2"),
		Muted:   lipgloss.Color("8"),
	}
}

// Styles are the rendered styles derived from a Palette.
type Styles struct {
	PeerA   lipgloss.Style
	PeerB   lipgloss.Style
	System  lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
	Muted   lipgloss.Style
	Banner  lipgloss.Style
}

// NewStyles builds Styles for renderer r.
func NewStyles(r *lipgloss.Renderer, p Palette) Styles {
	base := r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	return Styles{
		PeerA:   base.Foreground(p.PeerA).Bold(true),
		PeerB:   base.Foreground(p.PeerB).Bold(true),
		System:  base.Foreground(p.System),
		Error:   base.Foreground(p.Error),
		Info:    base.Foreground(p.Info),
		Success: base.Foreground(p.Success),
		Muted:   base.Faint(true),
		Banner: base.
			Bold(true).
			Border(lipgloss.DoubleBorder()).
			Padding(0, 2),
	}
}

// Peer returns the style for a peer slot label ("A" or "B").
func (s Styles) Peer(slot string) lipgloss.Style {
	if slot == "B" {
		return s.PeerB
	}
	return s.PeerA
}

// NewRenderer returns a lipgloss renderer for w honoring mode. In auto mode
// colors are used only when w is a terminal.
func NewRenderer(w io.Writer, mode string) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	switch mode {
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	case ColorAlways:
		if r.ColorProfile() == termenv.Ascii {
			r.SetColorProfile(termenv.ANSI256)
		}
	default:
		if !IsTerminal(w) {
			r.SetColorProfile(termenv.Ascii)
		}
	}
	return r
}

// IsTerminal reports whether v is a file descriptor attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
