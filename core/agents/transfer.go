package agents

import (
	"fmt"
	"strings"

	"github.com/corgivoice/voice-core/core/realtime"
)

// TransferToolName is the reserved hand-off tool. It is routed to the
// hand-off controller instead of a local executor.
const TransferToolName = "transferAgents"

// TransferArguments is the payload the model supplies when requesting a
// hand-off.
type TransferArguments struct {
	RationaleForTransfer string `json:"rationale_for_transfer"`
	ConversationContext  string `json:"conversation_context"`
	DestinationAgent     string `json:"destination_agent"`
}

// TransferOutput reports the hand-off outcome back to the model.
type TransferOutput struct {
	DestinationAgent string `json:"destination_agent"`
	DidTransfer      bool   `json:"did_transfer"`
}

func injectTransferTool(agent *Agent) {
	if len(agent.Downstream) == 0 {
		return
	}
	if _, exists := agent.Tool(TransferToolName); exists {
		return
	}

	destinations := make([]string, 0, len(agent.Downstream))
	var descriptions strings.Builder
	for _, downstream := range agent.Downstream {
		destinations = append(destinations, downstream.Name)
		fmt.Fprintf(&descriptions, "- %s: %s\n", downstream.Name, downstream.Description)
	}

	agent.Tools = append(agent.Tools, Tool{
		Declaration: realtime.ToolDeclaration{
			Type: "function",
			Name: TransferToolName,
			Description: "Triggers a transfer of the user to a more specialized agent. " +
				"Only call this function if one of the available agents is appropriate. " +
				"Let the user know you're about to transfer them before doing so.\n\n" +
				"Available Agents:\n" + descriptions.String(),
			Parameters: realtime.ParameterSchema{
				Type: "object",
				Properties: map[string]realtime.ParameterSchema{
					"rationale_for_transfer": {
						Type:        "string",
						Description: "The reasoning why this transfer is needed.",
					},
					"conversation_context": {
						Type: "string",
						Description: "Relevant context from the conversation that will help the " +
							"recipient perform the correct action.",
					},
					"destination_agent": {
						Type: "string",
						Description: "The more specialized destination_agent that should handle " +
							"the user's intended request.",
						Enum: destinations,
					},
				},
				Required: []string{"rationale_for_transfer", "conversation_context", "destination_agent"},
			},
		},
	})
}
