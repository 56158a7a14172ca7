package orchestration

import (
	"encoding/json"

	"github.com/corgivoice/voice-core/core/agents"
	"github.com/corgivoice/voice-core/core/realtime"
)

// handleFunctionCall routes a finished function call item. Hand-off requests
// are handled inline on the session loop; agent tools with a local executor
// run in their own goroutine and re-enter the loop with their result; calls
// the active agent does not implement get a simulated success so the
// conversation never stalls on a missing tool.
func (o *Orchestrator) handleFunctionCall(item realtime.ServerItem) {
	arguments := json.RawMessage(item.Arguments)
	var parsed map[string]any
	if err := json.Unmarshal(arguments, &parsed); err != nil {
		logger.Warn("Dropping function call with malformed arguments",
			"name", item.Name, "error", err)
		o.transcript.addBreadcrumb("function call: "+item.Name+" (malformed arguments)", map[string]any{
			"arguments": item.Arguments,
		})
		o.notifyTranscriptUpdated()
		return
	}

	o.transcript.addBreadcrumb("function call: "+item.Name, parsed)
	o.notifyTranscriptUpdated()

	if item.Name == agents.TransferToolName {
		o.handleTransferCall(item.CallID, arguments)
		return
	}

	o.mu.RLock()
	agent := o.activeAgent
	o.mu.RUnlock()

	if agent != nil {
		if tool, ok := agent.Tool(item.Name); ok && tool.HasExecutor() {
			o.executeTool(tool, item, arguments)
			return
		}
	}

	// The model called something nobody implements locally. Pretend it
	// succeeded and keep the turn going.
	simulatedResult := map[string]any{"result": true}
	o.transcript.addBreadcrumb("function call fallback: "+item.Name, simulatedResult)
	o.notifyTranscriptUpdated()
	o.sendFunctionCallOutput(item.CallID, simulatedResult)
	o.sendClientEvent(realtime.CreateResponse(), "(trigger response after function call fallback)")
}

func (o *Orchestrator) executeTool(tool agents.Tool, item realtime.ServerItem, arguments json.RawMessage) {
	o.mu.RLock()
	loop := o.loop
	o.mu.RUnlock()
	if loop == nil {
		return
	}

	call := agents.Call{
		Transcript: o.transcript.entries(),
		AddBreadcrumb: func(title string, data any) {
			payload, _ := data.(map[string]any)
			o.transcript.addBreadcrumb(title, payload)
			o.notifyTranscriptUpdated()
		},
	}

	go func() {
		ctx, span := tracer.Start(o.baseContext, "orchestration.executeTool")
		defer span.End()

		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("Tool executor panicked", "name", item.Name, "panic", recovered)
				loop.enqueue(toolResultItem{
					name:   item.Name,
					callID: item.CallID,
					result: map[string]any{"error": "tool execution failed"},
				})
			}
		}()

		result, err := tool.Execute(ctx, arguments, call)
		if err != nil {
			span.RecordError(err)
			logger.Error("Tool execution failed", "name", item.Name, "error", err)
			result = map[string]any{"error": err.Error()}
		}

		loop.enqueue(toolResultItem{name: item.Name, callID: item.CallID, result: result})
	}()
}

func (o *Orchestrator) handleToolResult(item toolResultItem) {
	payload, ok := item.result.(map[string]any)
	if !ok {
		payload = map[string]any{"result": item.result}
	}
	o.transcript.addBreadcrumb("function call result: "+item.name, payload)
	o.notifyTranscriptUpdated()

	o.sendFunctionCallOutput(item.callID, item.result)
	o.sendClientEvent(realtime.CreateResponse(), "(trigger response after function call result)")
}

func (o *Orchestrator) sendFunctionCallOutput(callID string, result any) {
	output, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to encode function call output", "error", err)
		output = []byte(`{"error":"unencodable result"}`)
	}
	o.sendClientEvent(realtime.CreateFunctionCallOutput(callID, string(output)), "")
}
