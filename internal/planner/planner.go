// Package planner turns a free-text question into a retrieval plan against
// the term index and classifies the question for downstream partitioning and
// prompting. The planner is stateless; it produces nothing but the plan.
package planner

import (
	"regexp"
	"strings"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/internal/index"
	"github.com/mperelman/chronicle/models"
)

var tokenRE = regexp.MustCompile(`[A-Za-z][A-Za-z'\-]*`)

type Planner struct {
	idx        *index.Index
	generic    map[string]struct{}
	strategies []QueryStrategy
}

func New(idx *index.Index, cfg config.RetrievalConfig) *Planner {
	generic := make(map[string]struct{}, len(cfg.GenericTerms))
	for _, t := range cfg.GenericTerms {
		generic[index.Normalize(t)] = struct{}{}
	}
	return &Planner{
		idx:        idx,
		generic:    generic,
		strategies: buildStrategies(cfg),
	}
}

// Plan derives the retrieval plan for a question. Acronym tokens, when
// present, override everything else as the sole anchors: intersecting a
// three-letter acronym's set with common-word sets destroys recall.
func (p *Planner) Plan(question string) models.RetrievalPlan {
	tokens := tokenRE.FindAllString(question, -1)

	var acronyms []string
	var terms []string
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if isUpper(tok) && len(tok) >= 2 {
			norm := index.Normalize(tok)
			if _, dup := seen[norm]; !dup {
				seen[norm] = struct{}{}
				acronyms = append(acronyms, norm)
			}
			continue
		}
		if len(tok) <= 3 || isStopword(tok) {
			continue
		}
		norm := index.Normalize(tok)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		terms = append(terms, norm)
	}

	// Only terms that actually resolve in the index can anchor a plan;
	// everything else would intersect to nothing.
	acronyms = p.filterIndexed(acronyms)
	if len(acronyms) > 0 {
		return models.RetrievalPlan{
			AnchorTerms:  acronyms,
			Strategy:     models.StrategyIntersection,
			AugmentTerms: p.filterIndexed(terms),
		}
	}

	var anchors []string
	var augment []string
	for _, t := range p.filterIndexed(terms) {
		if _, g := p.generic[t]; g {
			augment = append(augment, t)
			continue
		}
		anchors = append(anchors, t)
	}

	switch {
	case len(anchors) >= 2:
		return models.RetrievalPlan{AnchorTerms: anchors, Strategy: models.StrategyIntersection, AugmentTerms: augment}
	case len(anchors) == 1:
		// A single meaningful anchor is used alone: unioning it with generic
		// terms would dilute precision.
		return models.RetrievalPlan{AnchorTerms: anchors, Strategy: models.StrategyIntersection}
	default:
		return models.RetrievalPlan{AnchorTerms: augment, Strategy: models.StrategyUnion}
	}
}

// Resolve executes a plan against the index. Intersection plans fall back to
// union when the intersection is empty.
func (p *Planner) Resolve(plan models.RetrievalPlan) []string {
	if len(plan.AnchorTerms) == 0 {
		return nil
	}
	sets := make([][]string, 0, len(plan.AnchorTerms))
	for _, t := range plan.AnchorTerms {
		sets = append(sets, p.idx.Lookup(t))
	}
	if plan.Strategy == models.StrategyIntersection && len(sets) > 1 {
		if ids := index.Intersect(sets...); len(ids) > 0 {
			return ids
		}
		// Empty intersection: the anchors were individually meaningful but
		// never co-occur, so fall back to their union.
	}
	return index.Union(sets...)
}

// Classify dispatches to the first matching query-type strategy; the final
// broad-topic variant always matches.
func (p *Planner) Classify(question string) QueryStrategy {
	for _, s := range p.strategies {
		if s.Classify(question) {
			return s
		}
	}
	return p.strategies[len(p.strategies)-1]
}

func (p *Planner) filterIndexed(terms []string) []string {
	var out []string
	for _, t := range terms {
		if p.idx.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func isUpper(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return len(s) > 0
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
