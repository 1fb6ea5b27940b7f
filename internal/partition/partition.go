// Package partition splits a retrieval result that is too large for one
// generation call into ordered, budget-sized sub-groups by detected time
// period or geography.
package partition

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/models"
)

var yearRE = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

// Years extracts all plausible 4-digit years from text, ascending and unique.
func Years(text string) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, m := range yearRE.FindAllString(text, -1) {
		y := parseYear(m)
		if _, dup := seen[y]; dup {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// YearsInOrder extracts years in order of appearance, duplicates included.
func YearsInOrder(text string) []int {
	var out []int
	for _, m := range yearRE.FindAllString(text, -1) {
		out = append(out, parseYear(m))
	}
	return out
}

func parseYear(s string) int {
	y := 0
	for _, r := range s {
		y = y*10 + int(r-'0')
	}
	return y
}

// Splitter assigns chunks to labeled partitions under a word budget.
type Splitter struct {
	cfg     config.PartitionConfig
	regions []compiledRegion
}

type compiledRegion struct {
	label string
	re    *regexp.Regexp
}

func NewSplitter(cfg config.PartitionConfig) (*Splitter, error) {
	s := &Splitter{cfg: cfg}
	for _, r := range cfg.Regions {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling region pattern %q: %w", r.Label, err)
		}
		s.regions = append(s.regions, compiledRegion{label: r.Label, re: re})
	}
	return s, nil
}

// Split partitions chunks by the mode the query classification selected.
// Every input chunk lands in exactly one partition; source order is preserved
// within each bucket; no partition exceeds the word budget.
func (s *Splitter) Split(chunks []models.Chunk, mode models.PartitionMode) []models.Partition {
	if len(chunks) == 0 {
		return nil
	}
	var parts []models.Partition
	switch mode {
	case models.PartitionGeographic:
		parts = s.byRegion(chunks)
	default:
		parts = s.byEra(chunks)
	}
	return s.enforceBudget(parts)
}

// byEra assigns each chunk to the latest era bucket any of its years falls
// into. A chunk spanning two eras is credited to the later one.
func (s *Splitter) byEra(chunks []models.Chunk) []models.Partition {
	buckets := make(map[string][]models.Chunk)
	for _, chunk := range chunks {
		label := s.eraLabel(chunk.Text)
		buckets[label] = append(buckets[label], chunk)
	}
	var parts []models.Partition
	for _, era := range s.cfg.Eras {
		if bucket := buckets[era.Label]; len(bucket) > 0 {
			parts = append(parts, models.Partition{Label: era.Label, Chunks: bucket})
		}
	}
	if undated := buckets[undatedLabel]; len(undated) > 0 {
		parts = append(parts, models.Partition{Label: undatedLabel, Chunks: undated})
	}
	return parts
}

const undatedLabel = "undated"

func (s *Splitter) eraLabel(text string) string {
	years := Years(text)
	best := -1
	for _, y := range years {
		for i, era := range s.cfg.Eras {
			if y >= era.From && y <= era.To && i > best {
				best = i
			}
		}
	}
	if best < 0 {
		return undatedLabel
	}
	return s.cfg.Eras[best].Label
}

const unclassifiedLabel = "unclassified"

// byRegion matches each chunk against the ordered region patterns,
// assigning it to the first that matches.
func (s *Splitter) byRegion(chunks []models.Chunk) []models.Partition {
	buckets := make(map[string][]models.Chunk)
	for _, chunk := range chunks {
		label := unclassifiedLabel
		for _, r := range s.regions {
			if r.re.MatchString(chunk.Text) {
				label = r.label
				break
			}
		}
		buckets[label] = append(buckets[label], chunk)
	}
	var parts []models.Partition
	for _, r := range s.regions {
		if bucket := buckets[r.label]; len(bucket) > 0 {
			parts = append(parts, models.Partition{Label: r.label, Chunks: bucket})
		}
	}
	if rest := buckets[unclassifiedLabel]; len(rest) > 0 {
		parts = append(parts, models.Partition{Label: unclassifiedLabel, Chunks: rest})
	}
	return parts
}

// enforceBudget slices any oversized partition into fixed-size sequential
// slices, the fallback when a single bucket alone exceeds the word budget.
func (s *Splitter) enforceBudget(parts []models.Partition) []models.Partition {
	budget := s.cfg.Budget()
	var out []models.Partition
	for _, part := range parts {
		if part.Words() <= budget {
			out = append(out, part)
			continue
		}
		slice := models.Partition{Label: fmt.Sprintf("%s (part 1)", part.Label)}
		n := 1
		words := 0
		for _, chunk := range part.Chunks {
			cw := models.WordCount(chunk.Text)
			if words > 0 && words+cw > budget {
				out = append(out, slice)
				n++
				slice = models.Partition{Label: fmt.Sprintf("%s (part %d)", part.Label, n)}
				words = 0
			}
			slice.Chunks = append(slice.Chunks, chunk)
			words += cw
		}
		if len(slice.Chunks) > 0 {
			out = append(out, slice)
		}
	}
	return out
}
