package history

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Entry is one executed command as recorded in the log.
type Entry struct {
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
	Directory string    `json:"directory"`
	ExitCode  int       `json:"exit_code"`
	SessionID string    `json:"session_id"`
}

// Stats summarises the merged history
type Stats struct {
	Total  int
	Unique int
	Local  int
}

// Origin is the directory and shell session a lookup is made from.
type Origin struct {
	Directory string
	SessionID string
}

// Predicate selects entries on read.
type Predicate func(Entry) bool

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrInvalidScope = errors.New("invalid scope")
	// ErrInvalidUTF8 rejects commands JSON cannot store byte for byte.
	ErrInvalidUTF8  = errors.New("command is not valid UTF-8")
)

// IOError reports a failure on the primary log.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Scope restricts which entries are visible.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeSession
	ScopeLocal
)

type scopeDescriptor struct {
	name   string
	label  string
	hotkey string
	match  func(e Entry, o Origin) bool
}

// scopes is indexed by Scope; filtering, labels and key bindings all read it.
var scopes = [...]scopeDescriptor{
	ScopeGlobal: {
		name:   "global",
		label:  "GLOBAL",
		hotkey: "f1",
		match:  func(Entry, Origin) bool { return true },
	},
	ScopeSession: {
		name:   "session",
		label:  "SESSION",
		hotkey: "f2",
		match:  func(e Entry, o Origin) bool { return e.SessionID == o.SessionID },
	},
	ScopeLocal: {
		name:   "local",
		label:  "DIRECTORY",
		hotkey: "f3",
		match:  func(e Entry, o Origin) bool { return InDirectory(e.Directory, o.Directory) },
	},
}

// Scopes lists every scope in cycle order.
func Scopes() []Scope {
	out := make([]Scope, len(scopes))
	for i := range scopes {
		out[i] = Scope(i)
	}
	return out
}

func (s Scope) valid() bool { return s >= 0 && int(s) < len(scopes) }

func (s Scope) descriptor() scopeDescriptor {
	if !s.valid() {
		return scopes[ScopeGlobal]
	}
	return scopes[s]
}

func (s Scope) String() string { return s.descriptor().name }

// Label is the header text shown by the picker.
func (s Scope) Label() string { return s.descriptor().label }

// Hotkey is the key that switches the picker straight to s.
func (s Scope) Hotkey() string { return s.descriptor().hotkey }

// Next returns the following scope, wrapping after the last.
func (s Scope) Next() Scope {
	if !s.valid() {
		s = ScopeGlobal
	}
	return Scope((int(s) + 1) % len(scopes))
}

// Matches reports whether e is visible in s when looking from o.
func (s Scope) Matches(e Entry, o Origin) bool { return s.descriptor().match(e, o) }

// Predicate binds s to an origin.
func (s Scope) Predicate(o Origin) Predicate {
	return func(e Entry) bool { return s.Matches(e, o) }
}

// Set implements pflag.Value.
func (s *Scope) Set(v string) error {
	p, err := ParseScope(v)
	if err != nil {
		return err
	}
	*s = p
	return nil
}

// Type implements pflag.Value.
func (s *Scope) Type() string { return "scope" }

// ParseScope resolves a scope by name, case-insensitively.
func ParseScope(v string) (Scope, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, d := range scopes {
		if d.name == v {
			return Scope(i), nil
		}
	}
	return ScopeGlobal, fmt.Errorf("%w %q (want global, session or local)", ErrInvalidScope, v)
}

// InDirectory reports whether dir is root or below it. Matching is a plain
// "<root>/" prefix test, paths are not cleaned.
func InDirectory(dir, root string) bool {
	return dir == root || strings.HasPrefix(dir, root+"/")
}
