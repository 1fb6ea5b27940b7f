package index

import (
	"sort"
	"strings"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/models"
)

// Index is a persisted mapping from normalized term to the set of chunk ids
// containing that term or one of its synonyms. Built once per corpus version
// and read-only at query time, so it is safe to share across concurrent
// queries without locking.
type Index struct {
	Version int                 `json:"version"`
	Terms   map[string][]string `json:"terms"`
}

// FormatVersion tags the persisted index file layout.
const FormatVersion = 1

// Build constructs the index over the given chunks: extracts candidate terms
// per chunk, applies the minimum document-frequency gate (whitelisted acronyms
// are exempt) and merges synonym groups.
func Build(chunks []models.Chunk, cfg config.IndexConfig) *Index {
	ext := newExtractor(cfg)

	terms := make(map[string][]string)
	for _, chunk := range chunks {
		for _, term := range ext.terms(chunk.Text) {
			terms[term] = append(terms[term], chunk.ID)
		}
	}

	// Frequency gate: a term below the minimum document frequency is dropped,
	// unless it is a whitelisted acronym (abbreviation-style entities are rare
	// by nature and must never be dropped).
	for term, ids := range terms {
		ids = dedupIDs(ids)
		if len(ids) < cfg.MinDocFrequency && !ext.isWhitelistedAcronym(term) {
			delete(terms, term)
			continue
		}
		terms[term] = ids
	}

	idx := &Index{Version: FormatVersion, Terms: terms}
	idx.MergeSynonyms(normalizeGroups(cfg.SynonymGroups))
	return idx
}

// Lookup returns the chunk-id set for a normalized term. A nil index, an
// unknown term and an empty set all yield an empty result, never an error.
func (idx *Index) Lookup(term string) []string {
	if idx == nil || idx.Terms == nil {
		return nil
	}
	ids := idx.Terms[Normalize(term)]
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Has reports whether the term resolves to at least one chunk.
func (idx *Index) Has(term string) bool {
	if idx == nil || idx.Terms == nil {
		return false
	}
	return len(idx.Terms[Normalize(term)]) > 0
}

// Normalize lower-cases a surface form and strips plural/possessive suffixes.
// All-caps acronyms are kept verbatim so "ICA" and "ica" stay distinct keys.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if isAcronym(s) {
		return s
	}
	s = strings.ToLower(s)
	s = strings.TrimSuffix(s, "'s")
	s = strings.TrimSuffix(s, "’s")
	s = strings.TrimSuffix(s, "'")
	if len(s) > 3 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") {
		s = strings.TrimSuffix(s, "s")
	}
	return s
}

func isAcronym(s string) bool {
	if len(s) < 2 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func dedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Intersect returns ids present in every set. An empty input yields nil.
func Intersect(sets ...[]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, set := range sets {
		seen := make(map[string]struct{}, len(set))
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			counts[id]++
		}
	}
	var out []string
	for id, n := range counts {
		if n == len(sets) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Union returns the deduplicated union of all sets.
func Union(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
