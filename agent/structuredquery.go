package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/logging"
	"github.com/hupe1980/contextmesh/model"
	"github.com/hupe1980/contextmesh/workflow"
)

const translatorSystem = `You translate natural-language questions into a single
read-only SQL SELECT statement for the schema below. Respond with the SQL
statement only, no prose, no markdown.`

// writeKeywords are statement fragments that must never appear in a
// translated statement. Checked as whole words, case-insensitive.
var writeKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"grant", "revoke", "copy", "merge", "call", "execute",
}

// ValidateReadOnly enforces the structured-query safety gate: the statement
// must start with SELECT (or WITH for CTEs) and must not contain write or DDL
// keywords. Violations return *core.UnsafeQueryError.
func ValidateReadOnly(statement string) error {
	normalized := strings.ToLower(strings.Join(strings.Fields(statement), " "))
	if normalized == "" {
		return &core.UnsafeQueryError{Statement: statement, Reason: "empty statement"}
	}
	if !strings.HasPrefix(normalized, "select ") && !strings.HasPrefix(normalized, "with ") {
		return &core.UnsafeQueryError{Statement: statement, Reason: "statement is not a SELECT"}
	}
	for _, kw := range writeKeywords {
		for _, word := range strings.FieldsFunc(normalized, func(r rune) bool {
			return r == ' ' || r == '(' || r == ')' || r == ';' || r == ','
		}) {
			if word == kw {
				return &core.UnsafeQueryError{Statement: statement, Reason: fmt.Sprintf("forbidden keyword %q", kw)}
			}
		}
	}
	return nil
}

// StructuredQueryOptions configure the structured-query agent.
type StructuredQueryOptions struct {
	// RowLimit caps result rows per statement.
	RowLimit int

	// Schemas maps tenant namespace to the schema description shown to the
	// translation model. A namespace without an entry uses DefaultSchema.
	Schemas       map[string]string
	DefaultSchema string

	Logger logging.Logger
}

// StructuredQuery translates the query into a read-only SQL statement via the
// economy model tier, validates it through the safety gate and executes it
// against the relational collaborator. An unsafe statement is recovered into
// empty results with an explanatory note; it never reaches the store.
type StructuredQuery struct {
	router *model.Router
	rows   core.RowStore
	opts   StructuredQueryOptions
}

// NewStructuredQuery creates a new structured-query agent.
func NewStructuredQuery(router *model.Router, rows core.RowStore, optFns ...func(o *StructuredQueryOptions)) *StructuredQuery {
	opts := StructuredQueryOptions{
		RowLimit: 50,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &StructuredQuery{router: router, rows: rows, opts: opts}
}

// Name implements workflow.Step.
func (s *StructuredQuery) Name() string { return StepStructuredQuery }

// Run implements workflow.Step.
func (s *StructuredQuery) Run(ctx context.Context, state *core.WorkflowState) (workflow.Usage, error) {
	schema := s.opts.Schemas[state.Query.Namespace]
	if schema == "" {
		schema = s.opts.DefaultSchema
	}

	prompt := fmt.Sprintf("Schema:\n%s\n\nQuestion:\n%s", schema, state.Query.Text)
	completion, err := s.router.Call(ctx, model.ComplexitySimple, prompt, model.Constraints{
		System:    translatorSystem,
		MaxTokens: 500,
	})
	if err != nil {
		return workflow.Usage{}, fmt.Errorf("translate statement: %w", err)
	}

	usage := workflow.Usage{
		CostUSD: completion.CostUSD,
		Tokens:  completion.Tokens,
		Tiers:   []string{string(completion.Tier)},
	}

	statement := strings.TrimSpace(stripCodeFence(completion.Text))
	if err := ValidateReadOnly(statement); err != nil {
		s.opts.Logger.Warn("unsafe statement rejected", "workflow_id", state.ID, "reason", err)
		state.SetStructuredResults(nil, fmt.Sprintf("structured query rejected: %v", err))
		return usage, nil
	}

	results, err := s.rows.QueryRows(ctx, statement, s.opts.RowLimit)
	if err != nil {
		return usage, fmt.Errorf("execute statement: %w", err)
	}
	if len(results) > s.opts.RowLimit {
		results = results[:s.opts.RowLimit]
	}

	state.SetStructuredResults(results, "")
	s.opts.Logger.Debug("structured query executed", "workflow_id", state.ID, "rows", len(results))
	return usage, nil
}
