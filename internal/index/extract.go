package index

import (
	"regexp"
	"strings"

	"github.com/mperelman/chronicle/config"
)

var (
	// Capitalized multi-word sequences: candidate entity names ("Mayer Rothschild").
	nameRE = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)
	// Wiki-style bracket-delimited proper nouns.
	bracketRE = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
	// Standalone all-caps tokens, 2-6 letters.
	acronymRE = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
)

type extractor struct {
	acronyms   map[string]string // acronym -> lower-cased expansion
	keywords   []string          // normalized domain keywords
	keywordRaw []string
}

func newExtractor(cfg config.IndexConfig) *extractor {
	e := &extractor{acronyms: make(map[string]string, len(cfg.Acronyms))}
	for ac, exp := range cfg.Acronyms {
		e.acronyms[strings.ToUpper(ac)] = strings.ToLower(exp)
	}
	for _, kw := range cfg.Keywords {
		e.keywords = append(e.keywords, Normalize(kw))
		e.keywordRaw = append(e.keywordRaw, strings.ToLower(kw))
	}
	return e
}

// terms extracts every candidate term surface form from one chunk's text and
// returns them normalized. A term may repeat across chunks but is emitted at
// most once per chunk, so counting occurrences counts document frequency.
func (e *extractor) terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(term string) {
		term = Normalize(term)
		if term == "" || len(term) <= 2 {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	// Capitalized name sequences: index the full phrase and each component, so
	// a surname query finds chunks mentioning the full name.
	for _, name := range nameRE.FindAllString(text, -1) {
		add(name)
		for _, part := range strings.Fields(name) {
			add(part)
		}
	}

	for _, m := range bracketRE.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	lower := strings.ToLower(text)

	// Known acronyms match either by token or by expansion text.
	for _, tok := range acronymRE.FindAllString(text, -1) {
		if _, ok := e.acronyms[tok]; ok {
			add(tok)
		}
	}
	for ac, exp := range e.acronyms {
		if exp != "" && strings.Contains(lower, exp) {
			add(ac)
		}
	}

	for i, kw := range e.keywords {
		if strings.Contains(lower, e.keywordRaw[i]) {
			add(kw)
		}
	}

	return out
}

func (e *extractor) isWhitelistedAcronym(term string) bool {
	_, ok := e.acronyms[term]
	return ok
}
