package review

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/internal/telemetry"
	"github.com/mperelman/chronicle/models"
	"github.com/prometheus/client_golang/prometheus"
)

func testReviewer(cfg config.ReviewConfig) *Reviewer {
	return New(cfg, telemetry.New(prometheus.NewRegistry()), log.New(io.Discard, "", 0))
}

func testConfig() config.ReviewConfig {
	return config.ReviewConfig{
		MaxIterations:         2,
		MaxParagraphSentences: 5,
		ChronologyJumpYears:   50,
		CoverageGapYears:      30,
		MustMention: map[string][]string{
			"expulsion": {"expelled", "exile"},
		},
	}
}

func resultFor(t *testing.T, results []models.CriterionResult, name string) models.CriterionResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("criterion %q missing from results", name)
	return models.CriterionResult{}
}

func sentencesPara(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %d states a fact. ", i+1)
	}
	return strings.TrimSpace(b.String())
}

func TestParagraphLengthFails(t *testing.T) {
	r := testReviewer(testConfig())
	res := resultFor(t, r.Review(sentencesPara(8), nil), CriterionParagraphLength)
	if res.Passed {
		t.Fatal("expected paragraph_length to fail for an 8-sentence paragraph")
	}
	if !strings.Contains(res.Reason, "8 sentences") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestParagraphLengthPasses(t *testing.T) {
	r := testReviewer(testConfig())
	answer := sentencesPara(4) + "\n\n" + sentencesPara(5)
	if res := resultFor(t, r.Review(answer, nil), CriterionParagraphLength); !res.Passed {
		t.Fatalf("expected pass, got %q", res.Reason)
	}
}

func TestResplitParagraphs(t *testing.T) {
	r := testReviewer(testConfig())
	fixed := r.resplitParagraphs(sentencesPara(12))
	if res := r.checkParagraphLength(fixed); !res.Passed {
		t.Fatalf("resplit answer still fails: %q", res.Reason)
	}
	// No sentence may be lost in the re-split.
	if got := strings.Count(fixed, "states a fact"); got != 12 {
		t.Fatalf("expected 12 sentences after resplit, got %d", got)
	}
}

func TestChronologyBackwardJumpFails(t *testing.T) {
	r := testReviewer(testConfig())
	answer := "The bank expanded in 1860. Its charter dated from 1720."
	if res := resultFor(t, r.Review(answer, nil), CriterionChronology); res.Passed {
		t.Fatal("expected chronology to fail for a 140-year backward jump")
	}
}

func TestChronologySmallBackReferencePasses(t *testing.T) {
	r := testReviewer(testConfig())
	answer := "The firm grew through 1890. An 1870 precedent shaped its 1910 merger."
	if res := resultFor(t, r.Review(answer, nil), CriterionChronology); !res.Passed {
		t.Fatalf("expected pass for a jump within tolerance, got %q", res.Reason)
	}
}

func TestCoverageGapFails(t *testing.T) {
	r := testReviewer(testConfig())
	chunks := []models.Chunk{
		{ID: "a", Text: "Trade routes opened in 1820."},
		{ID: "b", Text: "The community re-established itself in 1948."},
	}
	res := resultFor(t, r.Review("Events through 1850 reshaped the region.", chunks), CriterionCoverage)
	if res.Passed {
		t.Fatal("expected coverage to fail when sources reach 1948 and answer stops at 1850")
	}
	if !strings.Contains(res.Reason, "1948") {
		t.Fatalf("reason should name the source max year, got %q", res.Reason)
	}
}

func TestMustMentionFails(t *testing.T) {
	r := testReviewer(testConfig())
	chunks := []models.Chunk{{ID: "a", Text: "Thousands were expelled from the city in 1892."}}
	res := resultFor(t, r.Review("The community prospered through 1892.", chunks), CriterionMustMention)
	if res.Passed {
		t.Fatal("expected must_mention to fail when sources discuss expulsion and the answer is silent")
	}
}

func TestMustMentionSynonymInAnswerPasses(t *testing.T) {
	r := testReviewer(testConfig())
	chunks := []models.Chunk{{ID: "a", Text: "Thousands were expelled from the city in 1892."}}
	res := resultFor(t, r.Review("The 1892 exile scattered the community.", chunks), CriterionMustMention)
	if !res.Passed {
		t.Fatalf("a synonym should satisfy the criterion, got %q", res.Reason)
	}
}

func TestRefineRegeneratesForCoverage(t *testing.T) {
	r := testReviewer(testConfig())
	chunks := []models.Chunk{
		{ID: "a", Text: "The press flourished in 1850."},
		{ID: "b", Text: "Archives were digitised in 1995."},
	}
	var gotInstruction string
	regen := func(_ context.Context, instruction string) (string, error) {
		gotInstruction = instruction
		return "The press flourished in 1850. Its archives were digitised in 1995.", nil
	}

	answer, results := r.Refine(context.Background(), "The press flourished in 1850.", chunks, regen)
	if !strings.Contains(gotInstruction, "1995") {
		t.Fatalf("instruction should name the source max year, got %q", gotInstruction)
	}
	if !strings.Contains(answer, "1995") {
		t.Fatalf("refined answer should cover 1995, got %q", answer)
	}
	if res := resultFor(t, results, CriterionCoverage); !res.Passed {
		t.Fatalf("coverage should pass after refinement, got %q", res.Reason)
	}
}

func TestRefineLocalFixSkipsRegeneration(t *testing.T) {
	cfg := testConfig()
	cfg.MustMention = nil
	r := testReviewer(cfg)
	regen := func(_ context.Context, instruction string) (string, error) {
		t.Fatalf("regeneration must not run for a paragraph-length-only failure (instruction %q)", instruction)
		return "", nil
	}

	answer, results := r.Refine(context.Background(), sentencesPara(9), nil, regen)
	if countFailed(results) != 0 {
		t.Fatalf("expected all criteria to pass after local fix, got %+v", results)
	}
	if got := strings.Count(answer, "states a fact"); got != 9 {
		t.Fatalf("expected all 9 sentences preserved, got %d", got)
	}
}

func TestRefineStopsWhenNoImprovement(t *testing.T) {
	r := testReviewer(testConfig())
	chunks := []models.Chunk{{ID: "a", Text: "Records extend to 1990."}}
	calls := 0
	regen := func(_ context.Context, _ string) (string, error) {
		calls++
		return "Nothing changed about 1800.", nil
	}

	original := "The story ends in 1800."
	answer, results := r.Refine(context.Background(), original, chunks, regen)
	if answer != original {
		t.Fatalf("a non-improving candidate must be discarded, got %q", answer)
	}
	if calls != 1 {
		t.Fatalf("expected the loop to stop after one non-improving round, got %d calls", calls)
	}
	if res := resultFor(t, results, CriterionCoverage); res.Passed {
		t.Fatal("coverage should still be failing")
	}
}

func TestRefineRegenerationErrorKeepsAnswer(t *testing.T) {
	r := testReviewer(testConfig())
	chunks := []models.Chunk{{ID: "a", Text: "Records extend to 1990."}}
	regen := func(_ context.Context, _ string) (string, error) {
		return "", fmt.Errorf("upstream unavailable")
	}

	original := "The story ends in 1800."
	answer, _ := r.Refine(context.Background(), original, chunks, regen)
	if answer != original {
		t.Fatalf("expected original answer kept on regeneration failure, got %q", answer)
	}
}
