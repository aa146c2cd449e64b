package catalog

import (
	"strings"
)

// Index is the in-memory title index built from a listing. Entries keep
// catalog order; duplicate titles are dropped so the first occurrence wins.
type Index struct {
	entries []Entry
	byTitle map[string]int
}

func NewIndex(entries []Entry) *Index {
	idx := &Index{
		entries: make([]Entry, 0, len(entries)),
		byTitle: make(map[string]int, len(entries)),
	}

	for _, entry := range entries {
		title := strings.ToLower(entry.Title)
		if _, exists := idx.byTitle[title]; exists {
			continue
		}

		idx.byTitle[title] = len(idx.entries)
		idx.entries = append(idx.entries, entry)
	}

	return idx
}

// Resolve returns every entry whose title contains all whitespace-separated
// query tokens, case-insensitively, in catalog order. Ranking is left to the
// caller: results are stable, not scored.
func (i *Index) Resolve(query string) []Entry {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil
	}

	var matches []Entry

	for _, entry := range i.entries {
		title := strings.ToLower(entry.Title)

		found := true

		for _, token := range tokens {
			if !strings.Contains(title, token) {
				found = false

				break
			}
		}

		if found {
			matches = append(matches, entry)
		}
	}

	return matches
}

// Entry looks up an entry by its exact title, case-insensitively.
func (i *Index) Entry(title string) (Entry, bool) {
	pos, ok := i.byTitle[strings.ToLower(title)]
	if !ok {
		return Entry{}, false
	}

	return i.entries[pos], true
}

// Len reports the number of indexed entries.
func (i *Index) Len() int {
	return len(i.entries)
}
