package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/internal/planner"
	"github.com/mperelman/chronicle/internal/rate"
	"github.com/mperelman/chronicle/internal/telemetry"
	"github.com/mperelman/chronicle/models"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeProvider struct {
	calls    int64
	generate func(prompt string) (string, error)
}

func (f *fakeProvider) Generate(_ context.Context, prompt string) (string, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.generate(prompt)
}

type testStrategy struct{}

func (testStrategy) Type() models.QueryType              { return models.QueryTypeBroad }
func (testStrategy) Classify(string) bool                { return true }
func (testStrategy) PartitionMode() models.PartitionMode { return models.PartitionTemporal }

func (testStrategy) BuildPrompt(question string, part models.Partition) string {
	var texts []string
	for _, c := range part.Chunks {
		texts = append(texts, c.Text)
	}
	return fmt.Sprintf("MAP %s | %s | %s", part.Label, question, strings.Join(texts, " "))
}

func (testStrategy) BuildReducePrompt(question string, labeled []planner.LabeledNarrative) string {
	var parts []string
	for _, ln := range labeled {
		parts = append(parts, ln.Label+": "+ln.Text)
	}
	return "REDUCE " + question + " | " + strings.Join(parts, " | ")
}

func testOrchestrator(cfg config.GenerateConfig, prov *fakeProvider) *Orchestrator {
	tel := telemetry.New(prometheus.NewRegistry())
	lim := rate.NewLimiter(1_000_000, time.Minute, nil)
	return New(cfg, prov, lim, tel, log.New(io.Discard, "", 0))
}

func testConfig() config.GenerateConfig {
	return config.GenerateConfig{
		MaxConcurrent:        4,
		MaxRetries:           2,
		RetryBaseDelay:       time.Millisecond,
		TokensPerMinute:      1_000_000,
		TokenWordMultiplier:  1.4,
		ExpectedOutputTokens: 100,
	}
}

func partitionsOf(labels ...string) []models.Partition {
	var out []models.Partition
	for i, lbl := range labels {
		out = append(out, models.Partition{
			Label: lbl,
			Chunks: []models.Chunk{
				{ID: fmt.Sprintf("c%d", i), Text: "some source material for " + lbl},
			},
		})
	}
	return out
}

func TestGenerateSinglePartitionSkipsReduce(t *testing.T) {
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "REDUCE") {
			return "", fmt.Errorf("reduce must not run for a single partition")
		}
		return "a narrative about the 1800s", nil
	}}
	o := testOrchestrator(testConfig(), prov)

	got, err := o.Generate(context.Background(), "what happened", testStrategy{}, partitionsOf("1800s"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "a narrative about the 1800s" {
		t.Fatalf("unexpected result %q", got)
	}
	if n := atomic.LoadInt64(&prov.calls); n != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", n)
	}
}

func TestGenerateReducesMultiplePartitions(t *testing.T) {
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "REDUCE") {
			return "merged narrative", nil
		}
		return "partial for " + prompt[4:9], nil
	}}
	o := testOrchestrator(testConfig(), prov)

	got, err := o.Generate(context.Background(), "q", testStrategy{}, partitionsOf("1700s", "1800s", "1900s"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "merged narrative" {
		t.Fatalf("expected reduced output, got %q", got)
	}
	// 3 map calls plus 1 reduce.
	if n := atomic.LoadInt64(&prov.calls); n != 4 {
		t.Fatalf("expected 4 provider calls, got %d", n)
	}
}

// Two of five partitions failing permanently must not stop the reduce over
// the remaining three.
func TestGeneratePartialFailureStillReduces(t *testing.T) {
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "REDUCE") {
			if strings.Contains(prompt, "1500s") || strings.Contains(prompt, "1600s") {
				return "", fmt.Errorf("failed partitions leaked into reduce prompt")
			}
			return "merged from survivors", nil
		}
		if strings.Contains(prompt, "1500s") || strings.Contains(prompt, "1600s") {
			return "", fmt.Errorf("upstream unavailable")
		}
		return "partial narrative", nil
	}}
	o := testOrchestrator(testConfig(), prov)

	got, err := o.Generate(context.Background(), "q", testStrategy{},
		partitionsOf("1500s", "1600s", "1700s", "1800s", "1900s"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "merged from survivors" {
		t.Fatalf("expected reduce over surviving partitions, got %q", got)
	}
}

func TestGenerateAllPartitionsFailed(t *testing.T) {
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		return "", fmt.Errorf("upstream unavailable")
	}}
	o := testOrchestrator(testConfig(), prov)

	_, err := o.Generate(context.Background(), "q", testStrategy{}, partitionsOf("1700s", "1800s"))
	if err != ErrAllPartitionsFailed {
		t.Fatalf("expected ErrAllPartitionsFailed, got %v", err)
	}
}

func TestGenerateRetriesTransientFailure(t *testing.T) {
	var attempts int64
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		if atomic.AddInt64(&attempts, 1) == 1 {
			return "", fmt.Errorf("temporary glitch")
		}
		return "recovered narrative", nil
	}}
	cfg := testConfig()
	cfg.MaxRetries = 3
	o := testOrchestrator(cfg, prov)

	got, err := o.Generate(context.Background(), "q", testStrategy{}, partitionsOf("1800s"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "recovered narrative" {
		t.Fatalf("unexpected result %q", got)
	}
	if n := atomic.LoadInt64(&attempts); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestGenerateTruncatedOutputRetriesWithHalfPartition(t *testing.T) {
	part := models.Partition{
		Label: "1800s",
		Chunks: []models.Chunk{
			{ID: "c1", Text: strings.Repeat("alpha ", 100)},
			{ID: "c2", Text: strings.Repeat("beta ", 100)},
			{ID: "c3", Text: strings.Repeat("gamma ", 100)},
			{ID: "c4", Text: strings.Repeat("delta ", 100)},
		},
	}
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		if strings.Contains(prompt, "delta") {
			// Full partition: return a suspiciously short answer.
			return "too short", nil
		}
		return "a full narrative produced from the halved partition with plenty of words in it", nil
	}}
	cfg := testConfig()
	cfg.TruncationRatio = 0.05
	o := testOrchestrator(cfg, prov)

	got, err := o.Generate(context.Background(), "q", testStrategy{}, []models.Partition{part})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(got, "halved partition") {
		t.Fatalf("expected retry output, got %q", got)
	}
	if n := atomic.LoadInt64(&prov.calls); n != 2 {
		t.Fatalf("expected 2 provider calls, got %d", n)
	}
}

func TestGenerateSingleChunkPartitionSkipsTruncationRetry(t *testing.T) {
	part := models.Partition{
		Label:  "1800s",
		Chunks: []models.Chunk{{ID: "c1", Text: strings.Repeat("alpha ", 400)}},
	}
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		return "too short", nil
	}}
	cfg := testConfig()
	cfg.TruncationRatio = 0.05
	o := testOrchestrator(cfg, prov)

	got, err := o.Generate(context.Background(), "q", testStrategy{}, []models.Partition{part})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "too short" {
		t.Fatalf("expected the short output kept as-is, got %q", got)
	}
	// The partition cannot be halved, so no second call may happen.
	if n := atomic.LoadInt64(&prov.calls); n != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", n)
	}
}

func TestGenerateReduceFallbackConcatenates(t *testing.T) {
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "REDUCE") {
			return "", fmt.Errorf("upstream unavailable")
		}
		if strings.Contains(prompt, "1700s") {
			return "first partial", nil
		}
		return "second partial", nil
	}}
	cfg := testConfig()
	cfg.MaxRetries = 1
	o := testOrchestrator(cfg, prov)

	got, err := o.Generate(context.Background(), "q", testStrategy{}, partitionsOf("1700s", "1800s"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "first partial\n\nsecond partial" {
		t.Fatalf("expected concatenation fallback in partition order, got %q", got)
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prov := &fakeProvider{generate: func(prompt string) (string, error) {
		return "should not matter", nil
	}}
	o := testOrchestrator(testConfig(), prov)

	_, err := o.Generate(ctx, "q", testStrategy{}, partitionsOf("1700s", "1800s"))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
