package model

import (
	"context"
	"fmt"
	"time"
)

// Complexity classifies one call site for tier selection. The classification
// is decided per call, not globally, so a single query can mix tiers across
// its agent invocations.
type Complexity int

const (
	// ComplexitySimple covers extraction-style tasks (classification,
	// statement translation) that the economy tier handles well.
	ComplexitySimple Complexity = iota
	// ComplexityOpenEnded covers open-ended generation (synthesis) that
	// warrants the premium tier.
	ComplexityOpenEnded
)

// String returns a readable label for the complexity class.
func (c Complexity) String() string {
	switch c {
	case ComplexitySimple:
		return "simple"
	case ComplexityOpenEnded:
		return "open_ended"
	default:
		return "unknown"
	}
}

// Tier labels the economy-vs-premium selection made by the router.
type Tier string

const (
	// TierEconomy is the cheap provider/model pair.
	TierEconomy Tier = "economy"
	// TierPremium is the expensive provider/model pair.
	TierPremium Tier = "premium"
)

// Route binds a tier to a concrete generator and its price. Pricing is
// injected (versioned configuration) rather than hardcoded so price changes
// never touch orchestration logic.
type Route struct {
	Tier      Tier
	Generator Generator

	// CostPerThousandTokens prices one call: tokens/1000 * price.
	CostPerThousandTokens float64
}

// Completion is the fully accounted result of one routed provider call.
type Completion struct {
	Text     string        `json:"text"`
	Tokens   int           `json:"tokens"`
	CostUSD  float64       `json:"cost_usd"`
	Tier     Tier          `json:"tier"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Latency  time.Duration `json:"latency"`
}

// RouterOptions configure a Router.
type RouterOptions struct {
	// Economy serves ComplexitySimple call sites.
	Economy Route
	// Premium serves ComplexityOpenEnded call sites.
	Premium Route
}

// Router maps a per-call complexity classification to an economy or premium
// provider/model pair via a static policy table.
type Router struct {
	routes map[Complexity]Route
}

// NewRouter creates a Router from the given tier routes. Both routes must
// carry a generator.
func NewRouter(economy, premium Route, optFns ...func(o *RouterOptions)) (*Router, error) {
	opts := RouterOptions{Economy: economy, Premium: premium}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Economy.Tier = TierEconomy
	opts.Premium.Tier = TierPremium

	if opts.Economy.Generator == nil || opts.Premium.Generator == nil {
		return nil, fmt.Errorf("router requires generators for both tiers")
	}

	return &Router{routes: map[Complexity]Route{
		ComplexitySimple:    opts.Economy,
		ComplexityOpenEnded: opts.Premium,
	}}, nil
}

// SelectTier returns the route serving the given complexity class.
func (r *Router) SelectTier(c Complexity) (Route, error) {
	route, ok := r.routes[c]
	if !ok {
		return Route{}, fmt.Errorf("no route for complexity %s", c)
	}
	return route, nil
}

// Call routes the prompt to the tier serving c, executes the generation and
// prices the reported token usage.
func (r *Router) Call(ctx context.Context, c Complexity, prompt string, constraints Constraints) (Completion, error) {
	route, err := r.SelectTier(c)
	if err != nil {
		return Completion{}, err
	}

	start := time.Now()
	gen, err := route.Generator.Generate(ctx, prompt, constraints)
	if err != nil {
		return Completion{}, fmt.Errorf("%s tier generation: %w", route.Tier, err)
	}

	info := route.Generator.Info()

	return Completion{
		Text:     gen.Text,
		Tokens:   gen.Tokens,
		CostUSD:  float64(gen.Tokens) / 1000.0 * route.CostPerThousandTokens,
		Tier:     route.Tier,
		Provider: info.Provider,
		Model:    info.Name,
		Latency:  time.Since(start),
	}, nil
}
