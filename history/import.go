package history

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ImportSessionPrefix marks entries read from a shell's own history file.
const ImportSessionPrefix = "import:"

// ParseShellHistory reads a zsh, bash or fish history file. Lines without a
// recorded time get fallback, so they keep their file order after sorting.
func ParseShellHistory(shell string, r io.Reader, fallback time.Time) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferInit), scanBufferMax)

	var entries []Entry
	switch shell {
	case "zsh":
		entries = parseZsh(scanner, fallback)
	case "bash":
		entries = parseBash(scanner, fallback)
	case "fish":
		entries = parseFish(scanner, fallback)
	default:
		return nil, fmt.Errorf("unsupported shell: %s (supported: zsh, bash, fish)", shell)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read %s history: %w", shell, err)
	}

	for i := range entries {
		entries[i].SessionID = ImportSessionPrefix + shell
		entries[i].Timestamp = entries[i].Timestamp.UTC()
	}
	return entries, nil
}

// zsh extended format is ": <start>:<elapsed>;<command>", a trailing
// backslash continues the command on the next line.
func parseZsh(scanner *bufio.Scanner, fallback time.Time) []Entry {
	var entries []Entry
	var cur *Entry
	continued := false

	for scanner.Scan() {
		line := scanner.Text()
		if continued && cur != nil {
			cur.Command += "\n" + strings.TrimSuffix(line, "\\")
			continued = strings.HasSuffix(line, "\\")
			continue
		}

		e := Entry{Timestamp: fallback}
		text := line
		if strings.HasPrefix(line, ": ") {
			if meta, cmd, ok := strings.Cut(line[2:], ";"); ok {
				start, _, _ := strings.Cut(meta, ":")
				if ts, err := strconv.ParseInt(strings.TrimSpace(start), 10, 64); err == nil {
					e.Timestamp = time.Unix(ts, 0)
					text = cmd
				}
			}
		}
		continued = strings.HasSuffix(text, "\\")
		e.Command = strings.TrimSuffix(text, "\\")
		entries = append(entries, e)
		cur = &entries[len(entries)-1]
	}
	return entries
}

// bash writes "#<unix>" comment lines before each command when
// HISTTIMEFORMAT is set.
func parseBash(scanner *bufio.Scanner, fallback time.Time) []Entry {
	var entries []Entry
	ts := fallback
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			if v, err := strconv.ParseInt(line[1:], 10, 64); err == nil {
				ts = time.Unix(v, 0)
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, Entry{Command: line, Timestamp: ts})
		ts = fallback
	}
	return entries
}

func parseFish(scanner *bufio.Scanner, fallback time.Time) []Entry {
	var entries []Entry
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "- cmd: "):
			entries = append(entries, Entry{
				Command:   unescapeFish(strings.TrimPrefix(line, "- cmd: ")),
				Timestamp: fallback,
			})
		case strings.HasPrefix(line, "  when: ") && len(entries) > 0:
			if v, err := strconv.ParseInt(strings.TrimSpace(line[len("  when: "):]), 10, 64); err == nil {
				entries[len(entries)-1].Timestamp = time.Unix(v, 0)
			}
		}
	}
	return entries
}

func unescapeFish(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
