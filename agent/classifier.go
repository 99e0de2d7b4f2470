package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/logging"
	"github.com/hupe1980/contextmesh/model"
	"github.com/hupe1980/contextmesh/workflow"
)

const classifierSystem = `You classify user queries for a retrieval pipeline.
Respond with JSON only, no prose:
{"intents": ["data_query"|"documentation"|"competitive"|"external_lookup", ...],
 "entities": {"name": "value", ...},
 "confidence": 0.0-1.0}
A query may carry several intents. Extract entities such as competitor_name,
metric, time_range when present.`

// ClassifierOptions configure the intent classifier.
type ClassifierOptions struct {
	// MinConfidence below which the classification is treated as ambiguous
	// and the default agent set applies.
	MinConfidence float64

	// ContextProvider supplies prior conversation turns for the prompt.
	// Optional; errors are logged and the classifier proceeds without
	// history.
	ContextProvider func(ctx context.Context, q core.Query) (string, error)

	Logger logging.Logger
}

// Classifier is the first step of every workflow. It calls the economy model
// tier to label the query with intent tags and extract entities. It never
// fails the workflow: a model error or ambiguous result falls back to the
// default agent set.
type Classifier struct {
	router *model.Router
	opts   ClassifierOptions
}

// NewClassifier creates a new intent classifier backed by the given router.
func NewClassifier(router *model.Router, optFns ...func(o *ClassifierOptions)) *Classifier {
	opts := ClassifierOptions{
		MinConfidence: 0.3,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Classifier{router: router, opts: opts}
}

// Name implements workflow.Step.
func (c *Classifier) Name() string { return StepClassifier }

// Run implements workflow.Step.
func (c *Classifier) Run(ctx context.Context, state *core.WorkflowState) (workflow.Usage, error) {
	var history string
	if c.opts.ContextProvider != nil {
		h, err := c.opts.ContextProvider(ctx, state.Query)
		if err != nil {
			c.opts.Logger.Warn("conversation context unavailable", "workflow_id", state.ID, "error", err)
		} else {
			history = h
		}
	}

	prompt := c.buildPrompt(state.Query.Text, history)
	completion, err := c.router.Call(ctx, model.ComplexitySimple, prompt, model.Constraints{
		System:    classifierSystem,
		MaxTokens: 300,
	})
	if err != nil {
		c.opts.Logger.Warn("classification model call failed, using default agents", "workflow_id", state.ID, "error", err)
		state.SetIntent(nil, nil)
		return workflow.Usage{}, nil
	}

	usage := workflow.Usage{
		CostUSD: completion.CostUSD,
		Tokens:  completion.Tokens,
		Tiers:   []string{string(completion.Tier)},
	}

	tags, entities, err := parseClassification(completion.Text, c.opts.MinConfidence)
	if err != nil {
		c.opts.Logger.Warn("ambiguous classification, using default agents", "workflow_id", state.ID, "error", err)
		state.SetIntent(nil, nil)
		return usage, nil
	}

	state.SetIntent(tags, entities)
	c.opts.Logger.Debug("query classified", "workflow_id", state.ID, "intents", tags, "entities", len(entities))
	return usage, nil
}

func (c *Classifier) buildPrompt(query, history string) string {
	var sb strings.Builder
	if history != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(history)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Classify this query:\n")
	sb.WriteString(query)
	return sb.String()
}

type classification struct {
	Intents    []string          `json:"intents"`
	Entities   map[string]string `json:"entities"`
	Confidence float64           `json:"confidence"`
}

var validTags = map[core.IntentTag]bool{
	core.IntentDataQuery:      true,
	core.IntentDocumentation:  true,
	core.IntentCompetitive:    true,
	core.IntentExternalLookup: true,
}

// parseClassification decodes the model's JSON reply, dropping unknown tags.
// It returns core.ErrClassificationAmbiguous when no valid tag survives or
// confidence is below the floor.
func parseClassification(text string, minConfidence float64) ([]core.IntentTag, map[string]string, error) {
	var parsed classification
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode classification: %w", err)
	}

	var tags []core.IntentTag
	for _, raw := range parsed.Intents {
		tag := core.IntentTag(strings.ToLower(strings.TrimSpace(raw)))
		if validTags[tag] {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return nil, nil, core.ErrClassificationAmbiguous
	}
	if parsed.Confidence > 0 && parsed.Confidence < minConfidence {
		return nil, nil, core.ErrClassificationAmbiguous
	}

	return tags, parsed.Entities, nil
}

// stripCodeFence removes a surrounding markdown code fence that models tend
// to wrap JSON replies in.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
