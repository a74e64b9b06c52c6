package history

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// SessionEnv names the variable shells export to group their commands.
const SessionEnv = "REHASH_SESSION_ID"

// Options configures a Manager.
type Options struct {
	Primary string
	Sources []string
	// MaxEntries compacts the primary after an add once exceeded. Zero disables.
	MaxEntries int
	Ignore     []*regexp.Regexp
	Origin     Origin
	Scorer     Scorer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Manager combines the store with the caller's directory and session.
type Manager struct {
	store      *Store
	scorer     Scorer
	origin     Origin
	maxEntries int
	ignore     []*regexp.Regexp
	log        *slog.Logger
	now        func() time.Time
}

// New creates a manager. A zero Origin is filled from the working directory
// and SessionEnv.
func New(opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := NewStore(opts.Primary, opts.Sources, logger)
	if err != nil {
		return nil, err
	}

	origin := opts.Origin
	if origin.Directory == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		origin.Directory = wd
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if origin.SessionID == "" {
		origin.SessionID = CurrentSessionID(now)
	}

	scorer := opts.Scorer
	if scorer == nil {
		scorer = FuzzyScorer{}
	}

	return &Manager{
		store:      store,
		scorer:     scorer,
		origin:     origin,
		maxEntries: opts.MaxEntries,
		ignore:     opts.Ignore,
		log:        logger,
		now:        now,
	}, nil
}

// CurrentSessionID returns SessionEnv if set, otherwise an id unique to this
// process.
func CurrentSessionID(now func() time.Time) string {
	if id := strings.TrimSpace(os.Getenv(SessionEnv)); id != "" {
		return id
	}
	return fmt.Sprintf("%d_%d", os.Getpid(), now().Unix())
}

func (m *Manager) Store() *Store  { return m.store }
func (m *Manager) Origin() Origin { return m.origin }
func (m *Manager) Scorer() Scorer { return m.scorer }

// Add records command with its exit status.
func (m *Manager) Add(command string, exitCode int) error {
	cleaned := sanitizeCommand(command)
	if cleaned == "" {
		return ErrEmptyCommand
	}
	if !utf8.ValidString(cleaned) {
		return ErrInvalidUTF8
	}
	for _, re := range m.ignore {
		if re.MatchString(cleaned) {
			m.log.Debug("command ignored", "pattern", re.String())
			return nil
		}
	}

	if err := m.store.Append(Entry{
		Command:   cleaned,
		Timestamp: m.now().UTC(),
		Directory: m.origin.Directory,
		ExitCode:  exitCode,
		SessionID: m.origin.SessionID,
	}); err != nil {
		return err
	}

	if m.maxEntries > 0 && m.store.Count() > m.maxEntries {
		m.log.Debug("compacting history", "max_entries", m.maxEntries)
		return m.store.Compact(m.maxEntries)
	}
	return nil
}

// Entries reads the merged log restricted to scope.
func (m *Manager) Entries(scope Scope) []Entry {
	return m.store.ReadAll(scope.Predicate(m.origin))
}

// Search ranks the scope's entries against query, best match first.
func (m *Manager) Search(query string, scope Scope, limit int) []Entry {
	return Rank(m.scorer, query, m.Entries(scope), limit)
}

// ListRecent returns the newest limit entries in scope, oldest first.
func (m *Manager) ListRecent(scope Scope, limit int) []Entry {
	return Recent(m.Entries(scope), limit)
}

// Snapshot returns the whole merged log for an interactive session.
func (m *Manager) Snapshot() []Entry {
	return m.store.ReadAll(nil)
}

// Stats counts the merged log.
func (m *Manager) Stats() Stats {
	all := m.store.ReadAll(nil)
	unique := make(map[string]struct{}, len(all))
	local := 0
	for _, e := range all {
		unique[e.Command] = struct{}{}
		if InDirectory(e.Directory, m.origin.Directory) {
			local++
		}
	}
	return Stats{Total: len(all), Unique: len(unique), Local: local}
}

// Clear removes the scope's entries from the primary log.
func (m *Manager) Clear(scope Scope) error {
	if scope == ScopeGlobal {
		return m.store.ClearAll()
	}
	return m.store.ClearScoped(scope.Predicate(m.origin))
}

// Compact keeps the newest max entries of the primary log.
func (m *Manager) Compact(max int) error {
	return m.store.Compact(max)
}

// Import appends already-built entries, e.g. parsed from a shell's own
// history file. Blank commands and commands that are not valid UTF-8 are
// skipped.
func (m *Manager) Import(entries []Entry) (int, error) {
	var batch []Entry
	for _, e := range entries {
		e.Command = sanitizeCommand(e.Command)
		if e.Command == "" {
			continue
		}
		if !utf8.ValidString(e.Command) {
			m.log.Debug("skipping import with invalid UTF-8", "session", e.SessionID)
			continue
		}
		e.Timestamp = e.Timestamp.UTC()
		batch = append(batch, e)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := m.store.appendEntries(batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// sanitizeCommand trims surrounding whitespace and newlines.
func sanitizeCommand(cmdText string) string {
	return strings.TrimSpace(cmdText)
}
