package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/models"
)

var yearQueryRE = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

// QueryStrategy is one closed variant of query handling: it decides whether a
// question belongs to it, which partitioning mode fits, and how to phrase the
// per-partition and reduce prompts.
type QueryStrategy interface {
	Type() models.QueryType
	Classify(question string) bool
	PartitionMode() models.PartitionMode
	BuildPrompt(question string, part models.Partition) string
	BuildReducePrompt(question string, labeled []LabeledNarrative) string
}

// LabeledNarrative pairs a partition label with its partial narrative.
type LabeledNarrative struct {
	Label string
	Text  string
}

func buildStrategies(cfg config.RetrievalConfig) []QueryStrategy {
	return []QueryStrategy{
		eventStrategy{keywords: cfg.EventKeywords},
		keywordStrategy{qtype: models.QueryTypeMarket, mode: models.PartitionTemporal, keywords: cfg.MarketKeywords,
			focus: "market structures, capital flows and financial instruments"},
		keywordStrategy{qtype: models.QueryTypeIdeology, mode: models.PartitionGeographic, keywords: cfg.IdeologyKeywords,
			focus: "ideas, movements and communal identity, region by region"},
		broadStrategy{},
	}
}

// eventStrategy matches questions naming an explicit year or an event keyword.
type eventStrategy struct {
	keywords []string
}

func (eventStrategy) Type() models.QueryType { return models.QueryTypeEvent }

func (s eventStrategy) Classify(question string) bool {
	if yearQueryRE.MatchString(question) {
		return true
	}
	return containsAny(strings.ToLower(question), s.keywords)
}

func (eventStrategy) PartitionMode() models.PartitionMode { return models.PartitionTemporal }

func (eventStrategy) BuildPrompt(question string, part models.Partition) string {
	return fmt.Sprintf(`You are a historian answering a question about a specific event.

Question: %s

Using only the source passages below (period: %s), describe what happened, when, who was involved and what the consequences were. Mention concrete years and names. Write flowing prose, no bullet points.

Source passages:
%s`, question, part.Label, partitionText(part))
}

func (eventStrategy) BuildReducePrompt(question string, labeled []LabeledNarrative) string {
	return reducePrompt(question, labeled, "Order the narrative strictly chronologically around the event and its aftermath.")
}

// keywordStrategy covers the configured topical variants.
type keywordStrategy struct {
	qtype    models.QueryType
	mode     models.PartitionMode
	keywords []string
	focus    string
}

func (s keywordStrategy) Type() models.QueryType { return s.qtype }

func (s keywordStrategy) Classify(question string) bool {
	return containsAny(strings.ToLower(question), s.keywords)
}

func (s keywordStrategy) PartitionMode() models.PartitionMode { return s.mode }

func (s keywordStrategy) BuildPrompt(question string, part models.Partition) string {
	return fmt.Sprintf(`You are a historian writing one section of a longer survey.

Question: %s

Using only the source passages below (section: %s), write a coherent account focused on %s. Mention concrete years and names. Write flowing prose, no bullet points.

Source passages:
%s`, question, part.Label, s.focus, partitionText(part))
}

func (s keywordStrategy) BuildReducePrompt(question string, labeled []LabeledNarrative) string {
	return reducePrompt(question, labeled, "Merge the sections into one thematically ordered narrative without repeating material.")
}

// broadStrategy is the default; it matches everything.
type broadStrategy struct{}

func (broadStrategy) Type() models.QueryType              { return models.QueryTypeBroad }
func (broadStrategy) Classify(string) bool                { return true }
func (broadStrategy) PartitionMode() models.PartitionMode { return models.PartitionTemporal }

func (broadStrategy) BuildPrompt(question string, part models.Partition) string {
	return fmt.Sprintf(`You are a historian writing one period of a longer chronological survey.

Question: %s

Using only the source passages below (period: %s), write a coherent narrative of this period as it bears on the question. Mention concrete years and names. Cover the whole period; do not stop early. Write flowing prose, no bullet points.

Source passages:
%s`, question, part.Label, partitionText(part))
}

func (broadStrategy) BuildReducePrompt(question string, labeled []LabeledNarrative) string {
	return reducePrompt(question, labeled, "Order the final narrative strictly chronologically from the earliest period to the latest, without skipping decades.")
}

func reducePrompt(question string, labeled []LabeledNarrative, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a historian merging draft sections into one final answer.

Question: %s

Below are draft narratives, one per section. Merge them into a single coherent long-form answer. %s Keep every concrete year and name that appears in the drafts. Write flowing prose with short paragraphs.

`, question, instruction)
	for _, ln := range labeled {
		fmt.Fprintf(&b, "## %s\n%s\n\n", ln.Label, ln.Text)
	}
	return b.String()
}

func partitionText(part models.Partition) string {
	var b strings.Builder
	for i, c := range part.Chunks {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(c.Text)
	}
	return b.String()
}
