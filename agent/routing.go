package agent

import "github.com/hupe1980/contextmesh/core"

// Step names as registered in the workflow graph and recorded in the trace.
const (
	StepClassifier      = "intent_classifier"
	StepRetrieval       = "retrieval"
	StepStructuredQuery = "structured_query"
	StepDelegate        = "delegate"
	StepSynthesis       = "synthesis"
)

// routingTable maps each intent tag to the agents it activates. The table is
// static; changing routing behavior means changing this table, not the
// engine.
var routingTable = map[core.IntentTag][]string{
	core.IntentDocumentation:  {StepRetrieval},
	core.IntentDataQuery:      {StepStructuredQuery},
	core.IntentCompetitive:    {StepRetrieval, StepDelegate},
	core.IntentExternalLookup: {StepDelegate},
}

// defaultAgents is the conservative agent set used when classification is
// ambiguous or the model call fails outright.
var defaultAgents = []string{StepRetrieval}

// AgentsFor resolves intent tags to the ordered, deduplicated set of agent
// steps to run. Tag order determines agent order; an empty or unknown tag set
// falls back to the default set.
func AgentsFor(tags []core.IntentTag) []string {
	seen := map[string]bool{}
	var agents []string
	for _, tag := range tags {
		for _, name := range routingTable[tag] {
			if !seen[name] {
				seen[name] = true
				agents = append(agents, name)
			}
		}
	}
	if len(agents) == 0 {
		return append([]string(nil), defaultAgents...)
	}
	return agents
}

// GuardFor returns a workflow guard that runs the named step only when the
// classified intent routes to it. Guards re-derive the agent set from the
// state so routing stays deterministic for a given classification.
func GuardFor(stepName string) func(state *core.WorkflowState) bool {
	return func(state *core.WorkflowState) bool {
		for _, name := range AgentsFor(state.Snapshot().Intent) {
			if name == stepName {
				return true
			}
		}
		return false
	}
}
