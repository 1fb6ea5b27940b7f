// Package orchestrator runs one generation call per partition under bounded
// concurrency and a global token-rate limit, then reduces the partial
// narratives into a single text.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/internal/planner"
	"github.com/mperelman/chronicle/internal/rate"
	"github.com/mperelman/chronicle/internal/telemetry"
	"github.com/mperelman/chronicle/models"
	"github.com/mperelman/chronicle/provider"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrAllPartitionsFailed is returned when no partition produced any output.
var ErrAllPartitionsFailed = fmt.Errorf("generation failed for every partition")

// Orchestrator coordinates the map and reduce generation calls for a query.
type Orchestrator struct {
	cfg       config.GenerateConfig
	provider  provider.Provider
	limiter   *rate.Limiter
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	// Concurrency control
	semaphore chan struct{}
}

// New creates an orchestrator. The limiter is shared across all jobs the
// orchestrator submits; the semaphore bounds simultaneous in-flight calls.
func New(cfg config.GenerateConfig, prov provider.Provider, limiter *rate.Limiter, tel *telemetry.Telemetry, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		provider:  prov,
		limiter:   limiter,
		telemetry: tel,
		logger:    logger,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Generate runs one generation job per partition and merges the partial
// narratives. Failures inside one partition never abort its siblings; a
// partition that fails after retries contributes an empty string. The merged
// result preserves partition order regardless of completion order.
func (o *Orchestrator) Generate(ctx context.Context, question string, strategy planner.QueryStrategy, partitions []models.Partition) (string, error) {
	if len(partitions) == 0 {
		return "", ErrAllPartitionsFailed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ctx, span := telemetry.Tracer.Start(ctx, "generate.map",
		trace.WithAttributes(
			attribute.Int("partitions", len(partitions)),
			attribute.String("query_type", string(strategy.Type())),
		))
	defer span.End()

	results := make([]string, len(partitions))
	var wg sync.WaitGroup
	for i, part := range partitions {
		wg.Add(1)
		go func(i int, part models.Partition) {
			defer wg.Done()

			select {
			case o.semaphore <- struct{}{}:
				defer func() { <-o.semaphore }()
			case <-ctx.Done():
				return
			}

			text, err := o.runPartition(ctx, question, strategy, part)
			if err != nil {
				o.logger.Printf("partition %q failed after retries: %v", part.Label, err)
				o.telemetry.JobsFailed.Inc()
				return
			}
			results[i] = text
		}(i, part)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		// Timed out mid-map: return whatever partial narrative exists.
		if partial := concatenate(label(partitions, results)); partial != "" {
			return partial, nil
		}
		return "", err
	}

	labeled := label(partitions, results)
	switch len(labeled) {
	case 0:
		span.SetStatus(codes.Error, "all partitions failed")
		return "", ErrAllPartitionsFailed
	case 1:
		// One partition means nothing to merge; skipping the reduce call
		// halves latency for small answers.
		return labeled[0].Text, nil
	}
	return o.reduce(ctx, question, strategy, labeled)
}

// runPartition executes one generation job with retries and the truncation
// fallback. An empty or abnormally short result triggers one retry with half
// the partition's chunks.
func (o *Orchestrator) runPartition(ctx context.Context, question string, strategy planner.QueryStrategy, part models.Partition) (string, error) {
	text, err := o.runJob(ctx, strategy.BuildPrompt(question, part), part.Label)
	if err != nil {
		return "", err
	}
	if !o.truncated(text, part.Words()) {
		return text, nil
	}
	if len(part.Chunks) < 2 {
		// A single-chunk partition cannot shrink; retrying with the same
		// prompt would be a no-op, so keep whatever came back.
		if text != "" {
			return text, nil
		}
		return "", fmt.Errorf("partition %q produced no usable output", part.Label)
	}

	half := part
	half.Chunks = part.Chunks[:(len(part.Chunks)+1)/2]
	o.logger.Printf("partition %q output looks truncated (%d words from %d input); retrying with %d of %d chunks",
		part.Label, models.WordCount(text), part.Words(), len(half.Chunks), len(part.Chunks))
	retryText, err := o.runJob(ctx, strategy.BuildPrompt(question, half), part.Label)
	if err == nil && retryText != "" {
		return retryText, nil
	}
	if text != "" {
		return text, nil
	}
	return "", fmt.Errorf("partition %q produced no usable output", part.Label)
}

// runJob submits a single prompt through the rate gate, retrying transient
// failures with exponential backoff.
func (o *Orchestrator) runJob(ctx context.Context, prompt string, lbl string) (string, error) {
	job := models.GenerationJob{
		ID:        uuid.NewString(),
		Label:     lbl,
		Prompt:    prompt,
		Status:    models.JobPending,
		CreatedAt: time.Now(),
	}
	estimate := o.estimateTokens(prompt)

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts(); attempt++ {
		job.Attempt = attempt
		if attempt > 1 {
			o.telemetry.JobRetries.Inc()
			if err := sleepCtx(ctx, o.backoff(attempt)); err != nil {
				return "", err
			}
		}
		if err := o.limiter.Wait(ctx, estimate); err != nil {
			return "", err
		}
		o.telemetry.JobsStarted.Inc()
		o.telemetry.TokensEstimated.Add(float64(estimate))
		job.Status = models.JobRunning

		text, err := o.provider.Generate(ctx, prompt)
		if err == nil {
			job.Status = models.JobDone
			job.Result = text
			actual := int(float64(models.WordCount(text)) * o.cfg.TokenWordMultiplier)
			o.limiter.Record(estimate+actual-o.cfg.ExpectedOutputTokens, estimate)
			return strings.TrimSpace(text), nil
		}
		lastErr = err
		if !provider.IsTransient(err) {
			break
		}
		o.logger.Printf("job %s (%s) attempt %d failed: %v", job.ID, lbl, attempt, err)
	}
	job.Status = models.JobFailed
	if lastErr != nil {
		job.Error = lastErr.Error()
	}
	return "", fmt.Errorf("job %s exhausted retries: %w", job.ID, lastErr)
}

// reduce merges labeled partial narratives via one further generation call,
// falling back to plain concatenation rather than losing the partial work.
func (o *Orchestrator) reduce(ctx context.Context, question string, strategy planner.QueryStrategy, labeled []planner.LabeledNarrative) (string, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "generate.reduce",
		trace.WithAttributes(attribute.Int("narratives", len(labeled))))
	defer span.End()

	merged, err := o.runJob(ctx, strategy.BuildReducePrompt(question, labeled), "reduce")
	if err != nil || merged == "" {
		o.logger.Printf("reduce step failed (%v); falling back to concatenation", err)
		o.telemetry.ReduceFallbacks.Inc()
		span.SetStatus(codes.Error, "reduce fell back to concatenation")
		return concatenate(labeled), nil
	}
	return merged, nil
}

func (o *Orchestrator) estimateTokens(prompt string) int {
	return int(float64(models.WordCount(prompt))*o.cfg.TokenWordMultiplier) + o.cfg.ExpectedOutputTokens
}

// truncated flags an output that is empty or abnormally short relative to
// the amount of source material it was given.
func (o *Orchestrator) truncated(text string, inputWords int) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if o.cfg.TruncationRatio <= 0 {
		return false
	}
	return float64(models.WordCount(text)) < float64(inputWords)*o.cfg.TruncationRatio
}

func (o *Orchestrator) maxAttempts() int {
	if o.cfg.MaxRetries < 1 {
		return 1
	}
	return o.cfg.MaxRetries
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.cfg.RetryBaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 2; i < attempt; i++ {
		d *= 2
	}
	return d
}

func label(partitions []models.Partition, results []string) []planner.LabeledNarrative {
	var out []planner.LabeledNarrative
	for i, part := range partitions {
		if strings.TrimSpace(results[i]) == "" {
			continue
		}
		out = append(out, planner.LabeledNarrative{Label: part.Label, Text: results[i]})
	}
	return out
}

func concatenate(labeled []planner.LabeledNarrative) string {
	var b strings.Builder
	for _, ln := range labeled {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ln.Text)
	}
	return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
