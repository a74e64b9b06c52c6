// Package picker holds the interactive search state: the query being typed,
// the active scope, and the selection and scroll position in the filtered
// list. It draws nothing; a renderer reads View after every event.
package picker

import (
	"github.com/kir-gadjello/rehash/history"
)

const (
	// RankLimit caps how many matches a non-empty query keeps.
	RankLimit = 50
	// Chrome is the header and prompt lines around the list.
	Chrome = 2

	scrollThreshold = 0.35
)

// Session is the picker state for one interactive run. The entry snapshot is
// fixed at construction.
type Session struct {
	all      []history.Entry
	filtered []history.Entry
	query    []rune
	scope    history.Scope
	origin   history.Origin
	scorer   history.Scorer
	selected int
	offset   int
	rows     int
}

// New builds a session over entries, pre-filled with prefix. rows is the
// list capacity, see Resize.
func New(entries []history.Entry, scope history.Scope, origin history.Origin, scorer history.Scorer, prefix string, rows int) *Session {
	if scorer == nil {
		scorer = history.FuzzyScorer{}
	}
	s := &Session{
		all:    entries,
		query:  []rune(prefix),
		scope:  scope,
		origin: origin,
		scorer: scorer,
		rows:   max(rows, 0),
	}
	s.updateFilter()
	return s
}

// Insert appends text to the query.
func (s *Session) Insert(text string) {
	if text == "" {
		return
	}
	s.query = append(s.query, []rune(text)...)
	s.updateFilter()
}

// Backspace drops the last character of the query.
func (s *Session) Backspace() {
	if len(s.query) == 0 {
		return
	}
	s.query = s.query[:len(s.query)-1]
	s.updateFilter()
}

// Up moves the selection one entry towards the oldest.
func (s *Session) Up() {
	if s.selected > 0 {
		s.selected--
	}
	s.updateScroll()
}

// Down moves the selection one entry towards the newest.
func (s *Session) Down() {
	if s.selected < len(s.filtered)-1 {
		s.selected++
	}
	s.updateScroll()
}

// SetScope switches to scope and refilters.
func (s *Session) SetScope(scope history.Scope) {
	s.scope = scope
	s.updateFilter()
}

// CycleScope moves to the next scope.
func (s *Session) CycleScope() {
	s.SetScope(s.scope.Next())
}

// Resize sets the number of list rows and keeps the selection visible.
func (s *Session) Resize(rows int) {
	s.rows = max(rows, 0)
	s.clampScroll()
}

// Selected returns the highlighted entry, false if nothing matches.
func (s *Session) Selected() (history.Entry, bool) {
	if s.selected < 0 || s.selected >= len(s.filtered) {
		return history.Entry{}, false
	}
	return s.filtered[s.selected], true
}

func (s *Session) Query() string             { return string(s.query) }
func (s *Session) Scope() history.Scope      { return s.scope }
func (s *Session) Filtered() []history.Entry { return s.filtered }
func (s *Session) SelectedIndex() int        { return s.selected }
func (s *Session) ScrollOffset() int         { return s.offset }
func (s *Session) Rows() int                 { return s.rows }

// updateFilter recomputes the filtered list and selects the newest entry.
// The list is always chronological; the query only decides membership.
func (s *Session) updateFilter() {
	var scoped []history.Entry
	for _, e := range s.all {
		if s.scope.Matches(e, s.origin) {
			scoped = append(scoped, e)
		}
	}

	if len(s.query) == 0 {
		s.filtered = history.Chronological(scoped)
	} else {
		s.filtered = history.Chronological(history.Rank(s.scorer, string(s.query), scoped, RankLimit))
	}

	s.selected = max(len(s.filtered)-1, 0)
	s.offset = 0
	s.updateScroll()
}

// updateScroll moves the window one row at a time once the selection comes
// within the threshold of either edge, then clamps so the selection is
// always on screen.
func (s *Session) updateScroll() {
	r := s.rows
	if r == 0 {
		return
	}
	t := max(int(float64(r)*scrollThreshold), 1)

	pos := s.selected - s.offset
	if pos < t && s.offset > 0 {
		s.offset--
	} else if pos >= r-t {
		if s.offset < max(len(s.filtered)-r, 0) {
			s.offset++
		}
	}
	s.clampScroll()
}

func (s *Session) clampScroll() {
	r := s.rows
	if r == 0 {
		return
	}
	if s.selected < s.offset {
		s.offset = s.selected
	} else if s.selected >= s.offset+r {
		s.offset = s.selected - (r - 1)
	}
	if s.offset < 0 {
		s.offset = 0
	}
}
