package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

const (
	scanBufferInit = 64 * 1024
	scanBufferMax  = 4 * 1024 * 1024
)

// Store is the append-only log. The primary file takes every write; merge
// sources are only ever read.
type Store struct {
	primary string
	sources []string
	log     *slog.Logger
}

// NewStore opens a store writing to primary and merging sources on read.
// The primary's directory is created if missing.
func NewStore(primary string, sources []string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if dir := filepath.Dir(primary); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return &Store{
		primary: primary,
		sources: append([]string(nil), sources...),
		log:     logger,
	}, nil
}

// Path returns the primary log path.
func (s *Store) Path() string { return s.primary }

// Sources returns the read-only merge sources.
func (s *Store) Sources() []string { return append([]string(nil), s.sources...) }

// Append writes e to the primary as a single line.
func (s *Store) Append(e Entry) error {
	return s.appendEntries([]Entry{e})
}

func (s *Store) appendEntries(entries []Entry) error {
	for _, e := range entries {
		if !utf8.ValidString(e.Command) {
			return &IOError{Op: "encode", Path: s.primary, Err: ErrInvalidUTF8}
		}
	}

	f, err := os.OpenFile(s.primary, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return &IOError{Op: "open", Path: s.primary, Err: err}
	}

	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return &IOError{Op: "encode", Path: s.primary, Err: err}
		}
		// one Write per record keeps concurrent appenders from interleaving
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return &IOError{Op: "write", Path: s.primary, Err: err}
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return &IOError{Op: "sync", Path: s.primary, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: s.primary, Err: err}
	}
	return nil
}

// ReadAll returns every well-formed entry from the primary and all merge
// sources that satisfies pred (nil keeps everything), oldest first.
func (s *Store) ReadAll(pred Predicate) []Entry {
	var entries []Entry
	for _, path := range append([]string{s.primary}, s.sources...) {
		var err error
		entries, err = s.readFile(path, pred, entries)
		if err != nil {
			s.log.Debug("history source truncated", "path", path, "error", err)
		}
	}
	sortChronological(entries)
	return entries
}

// ReadLocal returns entries recorded in dir or below it.
func (s *Store) ReadLocal(dir string) []Entry {
	return s.ReadAll(func(e Entry) bool { return InDirectory(e.Directory, dir) })
}

// ReadSession returns entries recorded by one shell session.
func (s *Store) ReadSession(id string) []Entry {
	return s.ReadAll(func(e Entry) bool { return e.SessionID == id })
}

// readPrimary is ReadAll restricted to the primary file. Rewrites use it so
// merge-source records are never copied into the primary. A read that stops
// early is an error: rewriting from it would drop the unread tail.
func (s *Store) readPrimary() ([]Entry, error) {
	entries, err := s.readFile(s.primary, nil, nil)
	if err != nil {
		return nil, &IOError{Op: "read", Path: s.primary, Err: err}
	}
	sortChronological(entries)
	return entries, nil
}

// readFile appends the well-formed entries of path to into. A missing or
// unopenable file reads as empty; the error is only for reads that fail
// part way.
func (s *Store) readFile(path string, pred Predicate, into []Entry) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Debug("history source unavailable", "path", path, "error", err)
		}
		return into, nil
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, scanBufferInit)
	skipped := 0
	for {
		line, oversized, err := readRecord(r)
		switch {
		case oversized:
			skipped++
		case len(line) > 0:
			var e Entry
			if jsonErr := json.Unmarshal(line, &e); jsonErr != nil {
				skipped++
			} else if pred == nil || pred(e) {
				into = append(into, e)
			}
		}
		if err != nil {
			if skipped > 0 {
				s.log.Debug("skipped malformed history lines", "path", path, "count", skipped)
			}
			if errors.Is(err, io.EOF) {
				return into, nil
			}
			return into, err
		}
	}
}

// readRecord returns the next line without its line ending. A line longer
// than scanBufferMax is consumed whole and reported as oversized so reading
// can resume at the line after it.
func readRecord(r *bufio.Reader) (line []byte, oversized bool, err error) {
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > scanBufferMax {
				oversized, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if rerr == bufio.ErrBufferFull {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), oversized, rerr
	}
}

// ClearAll deletes the primary log. Merge sources are left alone.
func (s *Store) ClearAll() error {
	if err := os.Remove(s.primary); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Op: "remove", Path: s.primary, Err: err}
	}
	return nil
}

// ClearScoped rewrites the primary without the entries matching exclude.
// The rewrite is not atomic: a crash after the delete loses the kept entries.
func (s *Store) ClearScoped(exclude Predicate) error {
	entries, err := s.readPrimary()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if !exclude(e) {
			kept = append(kept, e)
		}
	}
	return s.rewrite(kept)
}

// Compact keeps only the max most recent entries of the primary. The kept
// entries are written newest first; readers re-sort on load.
func (s *Store) Compact(max int) error {
	if max < 0 {
		max = 0
	}
	entries, err := s.readPrimary()
	if err != nil {
		return err
	}
	if len(entries) <= max {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return s.rewrite(entries[:max])
}

// Count returns the number of well-formed entries in the primary.
func (s *Store) Count() int {
	entries, _ := s.readFile(s.primary, nil, nil)
	return len(entries)
}

func (s *Store) rewrite(entries []Entry) error {
	if err := s.ClearAll(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	s.log.Debug("rewriting history", "path", s.primary, "entries", len(entries))
	return s.appendEntries(entries)
}

func sortChronological(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
