// Package dedupe collapses the textual overlap produced by sliding-window
// chunking before chunks are sent to the generation service.
package dedupe

import (
	"regexp"
	"strings"

	"github.com/mperelman/chronicle/models"
)

// phraseWords is the sentence length, in words, above which a repeat is
// treated as real chunk overlap rather than a legitimately recurring short
// statement. Short sentences ("He was a banker.") may repeat across sources;
// long spans recurring verbatim only happen because adjacent chunks overlap.
const phraseWords = 7

var (
	// Sentence boundary: terminal punctuation followed by whitespace and an
	// upper-case letter or digit. Common abbreviations are masked first so
	// "St. Petersburg" does not split.
	boundaryRE = regexp.MustCompile(`([.!?])\s+(\p{Lu}|\d)`)
	abbrevRE   = regexp.MustCompile(`\b(Mr|Mrs|Ms|Dr|St|Prof|Jr|Sr|vs|etc|e\.g|i\.e|ca|No)\.\s`)
	spaceRE    = regexp.MustCompile(`\s+`)
)

const abbrevMark = "\x01"

// Deduplicate filters repeated sentences out of an ordered chunk sequence.
// It preserves chunk order, drops chunks left empty and is idempotent:
// Deduplicate(Deduplicate(x)) == Deduplicate(x).
func Deduplicate(chunks []models.Chunk) []models.Chunk {
	seenPhrases := make(map[string]struct{}) // sentences of phraseWords+ words

	var out []models.Chunk
	for _, chunk := range chunks {
		var kept []string
		local := make(map[string]struct{})
		for _, sentence := range SplitSentences(chunk.Text) {
			key := normalizeSentence(sentence)
			if key == "" {
				continue
			}
			if models.WordCount(key) >= phraseWords {
				if _, dup := seenPhrases[key]; dup {
					continue
				}
				seenPhrases[key] = struct{}{}
			} else if _, dup := local[key]; dup {
				// Short sentences may legitimately recur across chunks, but a
				// verbatim repeat inside one chunk is still chunking noise.
				continue
			}
			local[key] = struct{}{}
			kept = append(kept, sentence)
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, models.Chunk{
			ID:        chunk.ID,
			Text:      strings.Join(kept, " "),
			SourceRef: chunk.SourceRef,
		})
	}
	return out
}

// SplitSentences breaks text into sentences, tolerating common abbreviations.
func SplitSentences(text string) []string {
	masked := abbrevRE.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Replace(m, ".", abbrevMark, 1)
	})
	marked := boundaryRE.ReplaceAllString(masked, "$1\n$2")
	var out []string
	for _, part := range strings.Split(marked, "\n") {
		part = strings.ReplaceAll(part, abbrevMark, ".")
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeSentence(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return spaceRE.ReplaceAllString(s, " ")
}
