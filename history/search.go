package history

import (
	"sort"

	"github.com/sahilm/fuzzy"
)

// Scorer rates how well candidate matches query. A higher score is a better
// match; ok is false when candidate does not match at all.
type Scorer interface {
	Score(query, candidate string) (score int, ok bool)
}

// FuzzyScorer is a case-insensitive subsequence matcher.
type FuzzyScorer struct{}

func (FuzzyScorer) Score(query, candidate string) (int, bool) {
	if query == "" {
		return 0, true
	}
	matches := fuzzy.Find(query, []string{candidate})
	if len(matches) == 0 {
		return 0, false
	}
	return matches[0].Score, true
}

type scored struct {
	entry Entry
	score int
}

// Rank returns the entries matching query, best first. Equal scores are
// ordered newest first. limit <= 0 returns every match.
func Rank(scorer Scorer, query string, entries []Entry, limit int) []Entry {
	candidates := make([]scored, 0, len(entries))
	for _, e := range entries {
		if score, ok := scorer.Score(query, e.Command); ok {
			candidates = append(candidates, scored{entry: e, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.Timestamp.After(candidates[j].entry.Timestamp)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

// Recent returns the newest limit entries in chronological order.
func Recent(entries []Entry, limit int) []Entry {
	out := append([]Entry(nil), entries...)
	sortChronological(out)
	if limit >= 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Chronological returns a copy of entries sorted oldest first.
func Chronological(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sortChronological(out)
	return out
}

// Unique drops repeated commands, keeping the first occurrence.
func Unique(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		if _, dup := seen[e.Command]; dup {
			continue
		}
		seen[e.Command] = struct{}{}
		out = append(out, e)
	}
	return out
}
