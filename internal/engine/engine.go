// Package engine wires the retrieval and generation pipeline behind a single
// Query entry point.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/internal/dedupe"
	"github.com/mperelman/chronicle/internal/index"
	"github.com/mperelman/chronicle/internal/orchestrator"
	"github.com/mperelman/chronicle/internal/partition"
	"github.com/mperelman/chronicle/internal/planner"
	"github.com/mperelman/chronicle/internal/rate"
	"github.com/mperelman/chronicle/internal/review"
	"github.com/mperelman/chronicle/internal/search"
	"github.com/mperelman/chronicle/internal/store"
	"github.com/mperelman/chronicle/internal/telemetry"
	"github.com/mperelman/chronicle/models"
	"github.com/mperelman/chronicle/provider"
)

// Engine owns the full question-to-narrative pipeline. Construct once, share
// across requests; all methods are safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	Registry  *prometheus.Registry

	mu      sync.RWMutex
	planner *planner.Planner

	splitter *partition.Splitter
	orch     *orchestrator.Orchestrator
	reviewer *review.Reviewer
	store    store.ChunkStore
	fallback *search.Fallback
}

// New builds an engine from configuration. A missing or unreadable term index
// is not fatal: the engine starts degraded and Query reports
// models.ErrIndexUnavailable until BuildIndex runs.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Engine, error) {
	registry := prometheus.NewRegistry()
	tel := telemetry.New(registry)

	prov, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	st, err := store.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}
	splitter, err := partition.NewSplitter(cfg.Partition)
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	limiter := rate.NewLimiter(cfg.Generate.TokensPerMinute, time.Minute, nil)
	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		Registry:  registry,
		splitter:  splitter,
		orch:      orchestrator.New(cfg.Generate, prov, limiter, tel, logger),
		reviewer:  review.New(cfg.Review, tel, logger),
		store:     st,
	}

	idx, err := index.Load(cfg.Index.Path)
	switch {
	case err == nil:
		e.setIndex(idx)
	case errors.Is(err, models.ErrIndexUnavailable):
		logger.Printf("term index not available at %s; serving degraded until build-index runs: %v", cfg.Index.Path, err)
	default:
		return nil, fmt.Errorf("loading term index: %w", err)
	}

	if cfg.Retrieval.FulltextFallback {
		fb, err := search.NewFallback()
		if err != nil {
			return nil, fmt.Errorf("creating fulltext fallback: %w", err)
		}
		chunks, err := st.AllChunks(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading chunks for fulltext fallback: %w", err)
		}
		if err := fb.Add(chunks); err != nil {
			return nil, fmt.Errorf("indexing fulltext fallback: %w", err)
		}
		e.fallback = fb
	}
	return e, nil
}

func (e *Engine) setIndex(idx *index.Index) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.planner = planner.New(idx, e.cfg.Retrieval)
}

func (e *Engine) currentPlanner() *planner.Planner {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.planner
}

// Ready reports whether the term index is loaded.
func (e *Engine) Ready() bool { return e.currentPlanner() != nil }

// Query answers one question. The whole pipeline runs under the configured
// query timeout. An empty retrieval returns the no-information sentinel
// without calling the generation service.
func (e *Engine) Query(ctx context.Context, question string) (models.Answer, error) {
	pl := e.currentPlanner()
	if pl == nil {
		return models.Answer{}, models.ErrIndexUnavailable
	}
	if timeout := e.cfg.General.QueryTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := telemetry.Tracer.Start(ctx, "engine.query")
	defer span.End()
	started := time.Now()
	e.telemetry.QueriesTotal.Inc()
	defer func() { e.telemetry.QueryDuration.Observe(time.Since(started).Seconds()) }()

	plan := pl.Plan(question)
	ids := pl.Resolve(plan)
	span.SetAttributes(
		attribute.String("retrieval.strategy", string(plan.Strategy)),
		attribute.Int("retrieval.chunks", len(ids)),
	)

	if len(ids) == 0 && e.fallback != nil {
		topK := e.cfg.Retrieval.FallbackTopK
		if topK <= 0 {
			topK = 20
		}
		fbIDs, err := e.fallback.Search(question, topK)
		if err != nil {
			e.logger.Printf("fulltext fallback failed: %v", err)
		} else if len(fbIDs) > 0 {
			e.logger.Printf("term retrieval empty; fulltext fallback found %d chunks", len(fbIDs))
			ids = fbIDs
		}
	}
	if len(ids) == 0 {
		e.telemetry.RetrievalEmpty.Inc()
		return models.Answer{Text: models.NoInformationMessage}, nil
	}

	chunks, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.Answer{}, fmt.Errorf("fetching chunks: %w", err)
	}
	chunks = dedupe.Deduplicate(chunks)
	if len(chunks) == 0 {
		e.telemetry.RetrievalEmpty.Inc()
		return models.Answer{Text: models.NoInformationMessage}, nil
	}

	strategy := pl.Classify(question)
	parts := e.splitter.Split(chunks, strategy.PartitionMode())
	e.telemetry.PartitionsPerRun.Observe(float64(len(parts)))
	span.SetAttributes(
		attribute.String("query.type", string(strategy.Type())),
		attribute.Int("partitions", len(parts)),
	)

	text, err := e.orch.Generate(ctx, question, strategy, parts)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAllPartitionsFailed) {
			span.SetStatus(codes.Error, "generation failed for every partition")
			return models.Answer{Text: models.GenerationFailedMessage}, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return models.Answer{}, err
	}

	regen := func(ctx context.Context, instruction string) (string, error) {
		return e.orch.Generate(ctx, question+"\n\nAdditional instructions: "+instruction, strategy, parts)
	}
	refined, results := e.reviewer.Refine(ctx, text, chunks, regen)
	return models.Answer{Text: refined, Criteria: results}, nil
}

// BuildIndex ingests a JSONL corpus: chunks are persisted to the store, the
// term index is built and saved, and the engine switches to the fresh index.
func (e *Engine) BuildIndex(ctx context.Context, corpusPath string) (int, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "engine.build_index",
		trace.WithAttributes(attribute.String("corpus", corpusPath)))
	defer span.End()

	chunks, err := store.LoadJSONL(corpusPath)
	if err != nil {
		return 0, err
	}
	if err := e.store.SaveChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("persisting chunks: %w", err)
	}
	idx := index.Build(chunks, e.cfg.Index)
	if err := idx.Save(e.cfg.Index.Path); err != nil {
		return 0, fmt.Errorf("saving term index: %w", err)
	}
	e.setIndex(idx)
	if e.fallback != nil {
		if err := e.fallback.Add(chunks); err != nil {
			return 0, fmt.Errorf("indexing fulltext fallback: %w", err)
		}
	}
	e.logger.Printf("indexed %d chunks, %d terms", len(chunks), len(idx.Terms))
	return len(chunks), nil
}

// Close releases the store and fallback index.
func (e *Engine) Close() error {
	var errs []error
	if e.fallback != nil {
		errs = append(errs, e.fallback.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}
