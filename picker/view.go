package picker

import (
	"fmt"
	"time"

	"github.com/kir-gadjello/rehash/history"
	"github.com/mattn/go-runewidth"
)

// Row is one visible list line.
type Row struct {
	Entry    history.Entry
	Selected bool
}

// View is what a renderer needs to paint one frame.
type View struct {
	Scope      history.Scope
	ScopeLabel string
	Query      string
	Rows       []Row
	Matches    int
	Width      int
	Height     int
}

// View snapshots the visible window for a terminal of width x height.
func (s *Session) View(width, height int) View {
	v := View{
		Scope:      s.scope,
		ScopeLabel: s.scope.Label(),
		Query:      string(s.query),
		Matches:    len(s.filtered),
		Width:      width,
		Height:     height,
	}
	end := min(s.offset+s.rows, len(s.filtered))
	for i := s.offset; i < end; i++ {
		v.Rows = append(v.Rows, Row{Entry: s.filtered[i], Selected: i == s.selected})
	}
	return v
}

// RelativeTime renders the age of t compactly, e.g. "5m ago".
func RelativeTime(now, t time.Time) string {
	d := now.Sub(t)
	days := int(d.Hours() / 24)
	switch {
	case days > 365:
		return fmt.Sprintf("%dy ago", days/365)
	case days > 30:
		return fmt.Sprintf("%dmo ago", days/30)
	case days > 0:
		return fmt.Sprintf("%dd ago", days)
	case d >= time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return "now"
	}
}

// Truncate shortens s to at most width terminal cells, marking the cut with
// an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
