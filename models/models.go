package models

import (
	"errors"
	"time"
)

// ErrIndexUnavailable is returned when the persisted term index is missing or unreadable.
var ErrIndexUnavailable = errors.New("term index unavailable")

// ErrNoInformation is returned when no chunk matched any retrieval plan.
var ErrNoInformation = errors.New("no information found")

// NoInformationMessage is the user-visible sentinel for an empty retrieval.
const NoInformationMessage = "No information found in the corpus for this question."

// GenerationFailedMessage is the user-visible sentinel when every partition failed.
const GenerationFailedMessage = "The answer could not be generated: the text generation service failed for every section of the source material."

// Chunk is a fixed-size (with overlap) span of source text with a stable id.
// Chunks are produced upstream and immutable here.
type Chunk struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	SourceRef string `json:"source_ref"`
}

type RetrievalStrategy string

const (
	StrategyIntersection RetrievalStrategy = "intersection"
	StrategyUnion        RetrievalStrategy = "union"
)

// RetrievalPlan describes which terms to resolve against the term index
// and how to combine their chunk-id sets. Derived per query, discarded after use.
type RetrievalPlan struct {
	AnchorTerms  []string          `json:"anchor_terms"`
	Strategy     RetrievalStrategy `json:"strategy"`
	AugmentTerms []string          `json:"augment_terms,omitempty"`
}

// QueryType selects the partitioning strategy and prompt template downstream.
type QueryType string

const (
	QueryTypeEvent    QueryType = "event"
	QueryTypeMarket   QueryType = "market"
	QueryTypeIdeology QueryType = "ideology"
	QueryTypeBroad    QueryType = "broad_topic"
)

// PartitionMode is how chunks are grouped before generation.
type PartitionMode string

const (
	PartitionTemporal   PartitionMode = "temporal"
	PartitionGeographic PartitionMode = "geographic"
)

// Partition is an ordered sub-group of chunks sized to fit one generation call.
type Partition struct {
	Label  string  `json:"label"`
	Chunks []Chunk `json:"chunks"`
}

// Words returns the total word count across the partition's chunk texts.
func (p Partition) Words() int {
	n := 0
	for _, c := range p.Chunks {
		n += len(splitWords(c.Text))
	}
	return n
}

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// GenerationJob is one request/response cycle against the generation service.
// Jobs are per-query and never reused.
type GenerationJob struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Prompt    string    `json:"prompt"`
	Status    JobStatus `json:"status"`
	Result    string    `json:"result,omitempty"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CriterionResult is the outcome of one structural check on an answer.
type CriterionResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Answer is the final narrative plus its validation outcome.
type Answer struct {
	Text     string            `json:"text"`
	Criteria []CriterionResult `json:"criteria"`
}

// Failed returns the criteria that did not pass.
func (a Answer) Failed() []CriterionResult {
	var out []CriterionResult
	for _, c := range a.Criteria {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}
