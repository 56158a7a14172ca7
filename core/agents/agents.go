// Package agents holds the immutable agent definitions a session can hand off
// between: persona instructions, tool declarations with their local
// executors, and the hand-off adjacency list.
package agents

import (
	"fmt"
	"strings"

	"github.com/corgivoice/voice-core/core/realtime"
)

// ClientInfoPlaceholder marks the region of an agent's instructions that gets
// replaced with the facts collected so far when the session is configured.
const ClientInfoPlaceholder = "{{client_information}}"

// Agent is one prompt/tool-set configuration. Constructed at startup; only
// the Downstream adjacency is populated afterwards, once, during set
// initialization.
type Agent struct {
	Name        string
	Description string
	// Instructions is the persona prompt, treated as opaque text. It may
	// contain ClientInfoPlaceholder.
	Instructions string
	Tools        []Tool
	// Downstream lists the agents reachable from this one via hand-off.
	Downstream []*Agent
	// Greeting, when set, is sent as one simulated user message after a
	// hand-off to this agent, seeding its first turn.
	Greeting string
	// CollectFacts marks agents whose finished assistant turns feed the
	// background fact extractor.
	CollectFacts bool
}

// Tool resolves a declared tool by name.
func (a *Agent) Tool(name string) (Tool, bool) {
	for _, tool := range a.Tools {
		if tool.Declaration.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// Declarations returns the tool list handed to the remote model.
func (a *Agent) Declarations() []realtime.ToolDeclaration {
	declarations := make([]realtime.ToolDeclaration, 0, len(a.Tools))
	for _, tool := range a.Tools {
		declarations = append(declarations, tool.Declaration)
	}
	return declarations
}

// ResolveInstructions substitutes the collected facts into the instruction
// placeholder. An empty summary removes the placeholder.
func (a *Agent) ResolveInstructions(factsSummary string) string {
	if !strings.Contains(a.Instructions, ClientInfoPlaceholder) {
		return a.Instructions
	}

	block := ""
	if factsSummary != "" {
		block = "# Your Client Information (from previous conversation)\n" +
			"You have detailed information about your client:\n" + factsSummary
	}
	return strings.ReplaceAll(a.Instructions, ClientInfoPlaceholder, block)
}

// Set is a validated collection of agents that can transfer between each
// other.
type Set struct {
	byName map[string]*Agent
	order  []string
}

// NewSet validates the passed agents and injects the transfer tool into every
// agent with downstream destinations. Unknown tool names (declared without an
// executor) and dangling downstream references are rejected here, at
// configuration-load time.
func NewSet(agentList ...*Agent) (*Set, error) {
	if len(agentList) == 0 {
		return nil, fmt.Errorf("agent set must contain at least one agent")
	}

	set := &Set{byName: make(map[string]*Agent, len(agentList))}
	for _, agent := range agentList {
		if agent.Name == "" {
			return nil, fmt.Errorf("agent with empty name")
		}
		if _, exists := set.byName[agent.Name]; exists {
			return nil, fmt.Errorf("duplicate agent name: %s", agent.Name)
		}
		set.byName[agent.Name] = agent
		set.order = append(set.order, agent.Name)
	}

	for _, agent := range agentList {
		for _, downstream := range agent.Downstream {
			if _, exists := set.byName[downstream.Name]; !exists {
				return nil, fmt.Errorf("agent %q references unknown downstream agent %q",
					agent.Name, downstream.Name)
			}
		}

		injectTransferTool(agent)

		for _, tool := range agent.Tools {
			if !tool.HasExecutor() && tool.Declaration.Name != TransferToolName {
				return nil, fmt.Errorf("agent %q declares tool %q without a local executor",
					agent.Name, tool.Declaration.Name)
			}
		}
	}

	return set, nil
}

// Get resolves an agent by name.
func (s *Set) Get(name string) (*Agent, bool) {
	agent, ok := s.byName[name]
	return agent, ok
}

// Default returns the first agent of the set, the one a fresh session starts
// on.
func (s *Set) Default() *Agent {
	return s.byName[s.order[0]]
}

// Names lists the agent names in registration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}
