package history

import (
	"errors"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
	"time"
)

// clock returns a Now func that advances one second per call.
func clock() func() time.Time {
	now := t0
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Primary == "" {
		opts.Primary = filepath.Join(t.TempDir(), "history.jsonl")
	}
	if opts.Origin == (Origin{}) {
		opts.Origin = Origin{Directory: "/a", SessionID: "s1"}
	}
	if opts.Now == nil {
		opts.Now = clock()
	}
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestManagerAddSearch(t *testing.T) {
	m := newTestManager(t, Options{})

	if err := m.Add("ls -la", 0); err != nil {
		t.Fatal(err)
	}
	if err := m.Add("  git status\n", 0); err != nil {
		t.Fatal(err)
	}

	if got := commands(m.Search("git", ScopeGlobal, 10)); !reflect.DeepEqual(got, []string{"git status"}) {
		t.Errorf("Search(git) = %v", got)
	}
	if got := commands(m.ListRecent(ScopeGlobal, 1)); !reflect.DeepEqual(got, []string{"git status"}) {
		t.Errorf("ListRecent(1) = %v", got)
	}

	e := m.Snapshot()[0]
	if e.Directory != "/a" || e.SessionID != "s1" || e.Timestamp.Location() != time.UTC {
		t.Errorf("recorded entry = %+v", e)
	}
}

func TestManagerAddRejects(t *testing.T) {
	m := newTestManager(t, Options{Ignore: []*regexp.Regexp{regexp.MustCompile(`^ *secret`)}})

	if err := m.Add(" \n\t", 0); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("blank Add err = %v, want ErrEmptyCommand", err)
	}
	if err := m.Add("cat caf\xe9.txt", 0); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("Latin-1 Add err = %v, want ErrInvalidUTF8", err)
	}
	if err := m.Add("secret export", 0); err != nil {
		t.Errorf("ignored Add err = %v", err)
	}
	if n := m.Store().Count(); n != 0 {
		t.Errorf("store has %d entries, want 0", n)
	}
}

func TestManagerLocalScope(t *testing.T) {
	primary := filepath.Join(t.TempDir(), "history.jsonl")
	now := clock()
	for _, dir := range []string{"/a", "/a/b", "/c"} {
		m := newTestManager(t, Options{Primary: primary, Origin: Origin{Directory: dir, SessionID: "s-" + dir}, Now: now})
		if err := m.Add("cmd in "+dir, 0); err != nil {
			t.Fatal(err)
		}
	}

	m := newTestManager(t, Options{Primary: primary, Origin: Origin{Directory: "/a", SessionID: "s-/c"}, Now: now})
	if got, want := commands(m.Entries(ScopeLocal)), []string{"cmd in /a", "cmd in /a/b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Local = %v, want %v", got, want)
	}
	if got, want := commands(m.Entries(ScopeSession)), []string{"cmd in /c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Session = %v, want %v", got, want)
	}

	if st := m.Stats(); st != (Stats{Total: 3, Unique: 3, Local: 2}) {
		t.Errorf("Stats = %+v", st)
	}

	if err := m.Clear(ScopeLocal); err != nil {
		t.Fatal(err)
	}
	if got := commands(m.Entries(ScopeGlobal)); !reflect.DeepEqual(got, []string{"cmd in /c"}) {
		t.Errorf("after Clear(Local) = %v", got)
	}
	if err := m.Clear(ScopeGlobal); err != nil {
		t.Fatal(err)
	}
	if st := m.Stats(); st.Total != 0 {
		t.Errorf("after Clear(Global) Stats = %+v", st)
	}
}

func TestManagerAutoCompact(t *testing.T) {
	m := newTestManager(t, Options{MaxEntries: 3})
	for _, c := range []string{"one", "two", "three", "four", "five"} {
		if err := m.Add(c, 0); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := commands(m.Snapshot()), []string{"three", "four", "five"}; !reflect.DeepEqual(got, want) {
		t.Errorf("after auto-compact = %v, want %v", got, want)
	}
}

func TestManagerImport(t *testing.T) {
	m := newTestManager(t, Options{})
	n, err := m.Import([]Entry{
		{Command: "  echo a ", Timestamp: at(-10), SessionID: "import:bash"},
		{Command: "   ", Timestamp: at(-9)},
		{Command: "rm caf\xe9", Timestamp: at(-9)},
		{Command: "echo b", Timestamp: at(-8).In(time.FixedZone("X", 3600)), SessionID: "import:bash"},
	})
	if err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	got := m.Snapshot()
	if !reflect.DeepEqual(commands(got), []string{"echo a", "echo b"}) {
		t.Errorf("Snapshot = %v", commands(got))
	}
	if got[1].Timestamp.Location() != time.UTC {
		t.Errorf("imported timestamp not normalised to UTC: %v", got[1].Timestamp)
	}
}

func TestCurrentSessionID(t *testing.T) {
	t.Setenv(SessionEnv, "  abc ")
	if got := CurrentSessionID(time.Now); got != "abc" {
		t.Errorf("CurrentSessionID = %q, want abc", got)
	}
	t.Setenv(SessionEnv, "")
	if got := CurrentSessionID(func() time.Time { return time.Unix(1700000000, 0) }); !regexp.MustCompile(`^\d+_1700000000$`).MatchString(got) {
		t.Errorf("fallback CurrentSessionID = %q", got)
	}
}
