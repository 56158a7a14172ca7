package orchestration

import (
	"encoding/json"

	"github.com/corgivoice/voice-core/core/agents"
	"github.com/corgivoice/voice-core/core/realtime"
)

// handleTransferCall performs a model-initiated hand-off. It runs entirely on
// the session loop: the remote conversation items created under the previous
// agent are deleted, the local history and pending registry reset, and the
// destination agent's configuration is pushed before its first turn is
// seeded. An unknown destination leaves the session untouched
// and reports the failure back to the model.
func (o *Orchestrator) handleTransferCall(callID string, arguments json.RawMessage) {
	var transfer agents.TransferArguments
	if err := json.Unmarshal(arguments, &transfer); err != nil {
		logger.Warn("Dropping transfer with malformed arguments", "error", err)
		o.sendFunctionCallOutput(callID, agents.TransferOutput{DidTransfer: false})
		return
	}

	output := o.performHandoff(transfer)

	o.sendFunctionCallOutput(callID, output)
	o.transcript.addBreadcrumb("function call: "+agents.TransferToolName+" response", map[string]any{
		"destination_agent": output.DestinationAgent,
		"did_transfer":      output.DidTransfer,
	})
	o.notifyTranscriptUpdated()
}

func (o *Orchestrator) performHandoff(transfer agents.TransferArguments) agents.TransferOutput {
	destination, ok := o.agents.Get(transfer.DestinationAgent)
	if !ok {
		logger.Warn("Transfer to unknown agent rejected", "destination", transfer.DestinationAgent)
		return agents.TransferOutput{
			DestinationAgent: transfer.DestinationAgent,
			DidTransfer:      false,
		}
	}

	o.mu.RLock()
	from := ""
	if o.activeAgent != nil {
		from = o.activeAgent.Name
	}
	o.mu.RUnlock()

	// The destination agent starts from a clean conversation; everything it
	// needs to know travels in the transfer context.
	for _, itemID := range o.pendingItems {
		o.sendClientEvent(realtime.DeleteItem(itemID), "(delete conversation item for agent transfer)")
	}
	o.pendingItems = nil
	o.assistantDeltas = map[string]string{}
	o.transcript.clearHistory()

	o.mu.Lock()
	o.activeAgent = destination
	onAgentChanged := o.callbacks.onAgentChanged
	o.mu.Unlock()
	if onAgentChanged != nil {
		onAgentChanged(destination.Name)
	}

	o.transcript.addBreadcrumb("Agent Transfer: "+from+" -> "+destination.Name, map[string]any{
		"from":                   from,
		"to":                     destination.Name,
		"rationale_for_transfer": transfer.RationaleForTransfer,
		"conversation_context":   transfer.ConversationContext,
	})
	o.notifyTranscriptUpdated()

	o.updateSession(false)

	// The destination always gets its first turn seeded: with its scripted
	// greeting when it has one, otherwise with a hidden opener.
	if destination.Greeting != "" {
		o.sendSimulatedUserMessage(destination.Greeting, false)
	} else {
		o.sendSimulatedUserMessage("hi", true)
	}

	logger.Info("Agent hand-off completed", "from", from, "to", destination.Name)

	return agents.TransferOutput{
		DestinationAgent: destination.Name,
		DidTransfer:      true,
	}
}
