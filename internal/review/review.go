// Package review checks a generated narrative against structural criteria
// and drives a bounded refinement loop over the failures.
package review

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/internal/dedupe"
	"github.com/mperelman/chronicle/internal/partition"
	"github.com/mperelman/chronicle/internal/telemetry"
	"github.com/mperelman/chronicle/models"
)

// Criterion names reported in CriterionResult.
const (
	CriterionParagraphLength = "paragraph_length"
	CriterionChronology      = "chronology"
	CriterionCoverage        = "coverage"
	CriterionMustMention     = "must_mention"
)

// RegenerateFunc re-runs generation with an extra instruction appended to the
// original question. Supplied by the caller so review stays provider-agnostic.
type RegenerateFunc func(ctx context.Context, instruction string) (string, error)

// Reviewer validates answers and repairs the failures it can.
type Reviewer struct {
	cfg       config.ReviewConfig
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func New(cfg config.ReviewConfig, tel *telemetry.Telemetry, logger *log.Logger) *Reviewer {
	return &Reviewer{cfg: cfg, telemetry: tel, logger: logger}
}

// Review runs every criterion against the answer. The chunks are the source
// material the answer was generated from; coverage and must-mention compare
// the answer against what the sources contain.
func (r *Reviewer) Review(answer string, chunks []models.Chunk) []models.CriterionResult {
	return []models.CriterionResult{
		r.checkParagraphLength(answer),
		r.checkChronology(answer),
		r.checkCoverage(answer, chunks),
		r.checkMustMention(answer, chunks),
	}
}

// Refine applies up to MaxIterations rounds of repair. Paragraph-length
// failures are fixed locally by re-splitting; the remaining failures trigger
// one regeneration per round with an augmented instruction. The loop stops
// early once a round stops reducing the failure count, keeping the better
// answer.
func (r *Reviewer) Refine(ctx context.Context, answer string, chunks []models.Chunk, regen RegenerateFunc) (string, []models.CriterionResult) {
	results := r.Review(answer, chunks)
	for iter := 1; iter <= r.cfg.MaxIterations && countFailed(results) > 0; iter++ {
		r.telemetry.RefineIterations.Inc()
		candidate := answer

		if failed(results, CriterionParagraphLength) {
			candidate = r.resplitParagraphs(candidate)
		}
		if instruction := r.buildInstruction(results, chunks); instruction != "" && regen != nil {
			regenerated, err := regen(ctx, instruction)
			if err != nil {
				r.logger.Printf("refinement regeneration failed: %v", err)
			} else if strings.TrimSpace(regenerated) != "" {
				candidate = regenerated
				if failed(r.Review(candidate, chunks), CriterionParagraphLength) {
					candidate = r.resplitParagraphs(candidate)
				}
			}
		}

		next := r.Review(candidate, chunks)
		if countFailed(next) >= countFailed(results) {
			r.logger.Printf("refinement round %d did not improve (%d failures); keeping previous answer", iter, countFailed(results))
			break
		}
		answer, results = candidate, next
	}
	return answer, results
}

// checkParagraphLength fails when any paragraph runs past the sentence cap.
func (r *Reviewer) checkParagraphLength(answer string) models.CriterionResult {
	res := models.CriterionResult{Name: CriterionParagraphLength, Passed: true}
	if r.cfg.MaxParagraphSentences <= 0 {
		return res
	}
	for i, para := range paragraphs(answer) {
		if n := len(dedupe.SplitSentences(para)); n > r.cfg.MaxParagraphSentences {
			res.Passed = false
			res.Reason = fmt.Sprintf("paragraph %d has %d sentences (max %d)", i+1, n, r.cfg.MaxParagraphSentences)
			return res
		}
	}
	return res
}

// checkChronology fails when the answer's years jump backwards by more than
// the configured tolerance. Small back-references are normal narrative style;
// a large jump usually means the merge shuffled the eras.
func (r *Reviewer) checkChronology(answer string) models.CriterionResult {
	res := models.CriterionResult{Name: CriterionChronology, Passed: true}
	years := partition.YearsInOrder(answer)
	high := 0
	for _, y := range years {
		if high-y > r.cfg.ChronologyJumpYears {
			res.Passed = false
			res.Reason = fmt.Sprintf("year %d appears after %d (tolerance %d years)", y, high, r.cfg.ChronologyJumpYears)
			return res
		}
		if y > high {
			high = y
		}
	}
	return res
}

// checkCoverage fails when the sources reach years the answer never comes
// close to.
func (r *Reviewer) checkCoverage(answer string, chunks []models.Chunk) models.CriterionResult {
	res := models.CriterionResult{Name: CriterionCoverage, Passed: true}
	sourceMax := maxYear(chunks)
	if sourceMax == 0 {
		return res
	}
	answerMax := 0
	if years := partition.Years(answer); len(years) > 0 {
		answerMax = years[len(years)-1]
	}
	if sourceMax-answerMax > r.cfg.CoverageGapYears {
		res.Passed = false
		res.Reason = fmt.Sprintf("sources reach %d but the answer stops at %d", sourceMax, answerMax)
	}
	return res
}

// checkMustMention fails when a configured signal group present in the
// sources never surfaces in the answer under any of its names.
func (r *Reviewer) checkMustMention(answer string, chunks []models.Chunk) models.CriterionResult {
	res := models.CriterionResult{Name: CriterionMustMention, Passed: true}
	lowerAnswer := strings.ToLower(answer)
	var source strings.Builder
	for _, c := range chunks {
		source.WriteString(strings.ToLower(c.Text))
		source.WriteString(" ")
	}
	lowerSource := source.String()

	var missing []string
	for name, terms := range r.cfg.MustMention {
		all := append([]string{name}, terms...)
		if !containsAnyTerm(lowerSource, all) {
			continue
		}
		if !containsAnyTerm(lowerAnswer, all) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		res.Passed = false
		res.Reason = fmt.Sprintf("sources mention %s but the answer does not", strings.Join(missing, ", "))
	}
	return res
}

// buildInstruction turns the non-local failures into one regeneration
// instruction. Returns "" when only locally repairable criteria failed.
func (r *Reviewer) buildInstruction(results []models.CriterionResult, chunks []models.Chunk) string {
	var parts []string
	for _, res := range results {
		if res.Passed {
			continue
		}
		switch res.Name {
		case CriterionChronology:
			parts = append(parts, "Present events in strict chronological order.")
		case CriterionCoverage:
			if y := maxYear(chunks); y > 0 {
				parts = append(parts, fmt.Sprintf("Cover developments up to and including %d.", y))
			}
		case CriterionMustMention:
			parts = append(parts, "Address the following explicitly: "+strings.TrimPrefix(res.Reason, "sources mention "))
		}
	}
	return strings.Join(parts, " ")
}

// resplitParagraphs rebuilds the answer so no paragraph exceeds the sentence
// cap, preserving sentence order.
func (r *Reviewer) resplitParagraphs(answer string) string {
	if r.cfg.MaxParagraphSentences <= 0 {
		return answer
	}
	var out []string
	for _, para := range paragraphs(answer) {
		sentences := dedupe.SplitSentences(para)
		for start := 0; start < len(sentences); start += r.cfg.MaxParagraphSentences {
			end := start + r.cfg.MaxParagraphSentences
			if end > len(sentences) {
				end = len(sentences)
			}
			out = append(out, strings.Join(sentences[start:end], " "))
		}
	}
	return strings.Join(out, "\n\n")
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func maxYear(chunks []models.Chunk) int {
	max := 0
	for _, c := range chunks {
		if years := partition.Years(c.Text); len(years) > 0 {
			if y := years[len(years)-1]; y > max {
				max = y
			}
		}
	}
	return max
}

func countFailed(results []models.CriterionResult) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}

func failed(results []models.CriterionResult, name string) bool {
	for _, r := range results {
		if r.Name == name && !r.Passed {
			return true
		}
	}
	return false
}

func containsAnyTerm(haystack string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(haystack, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
