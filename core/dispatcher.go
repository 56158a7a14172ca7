package orchestration

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/corgivoice/voice-core/core/realtime"
)

// moderationCheckpointWords is how many whole words of streamed assistant
// speech accumulate between moderation checks.
const moderationCheckpointWords = 5

// handleServerEvent is the single entry point for inbound protocol traffic.
// It runs on the session loop goroutine, so it may touch the pending-item
// registry and the delta accumulators directly.
func (o *Orchestrator) handleServerEvent(raw []byte) {
	var event realtime.ServerEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		logger.Warn("Dropping malformed server event", "error", err)
		return
	}

	o.events.logServerEvent(event.Type, json.RawMessage(raw))

	switch event.Type {
	case realtime.TypeSessionCreated:
		o.handleSessionCreated(event)
	case realtime.TypeOutputAudioStarted:
		o.setOutputAudioActive(true)
	case realtime.TypeOutputAudioStopped:
		o.setOutputAudioActive(false)
	case realtime.TypeItemCreated:
		o.handleItemCreated(event)
	case realtime.TypeInputTranscriptionDone:
		o.handleInputTranscriptionDone(event)
	case realtime.TypeAudioTranscriptDelta:
		o.handleAudioTranscriptDelta(event)
	case realtime.TypeAudioDelta:
		o.handleAudioDelta(event)
	case realtime.TypeResponseDone:
		o.handleResponseDone(event)
	case realtime.TypeOutputItemDone:
		o.handleOutputItemDone(event)
	}
}

func (o *Orchestrator) handleSessionCreated(event realtime.ServerEvent) {
	o.setStatus(StatusConnected)

	sessionID := ""
	if event.Session != nil {
		sessionID = event.Session.ID
	}
	o.transcript.addBreadcrumb("session.id: "+sessionID, map[string]any{
		"startedAt": o.now().Format(time.RFC3339),
	})

	o.mu.RLock()
	agent := o.activeAgent
	o.mu.RUnlock()
	if agent != nil {
		o.transcript.addBreadcrumb("Agent: "+agent.Name, map[string]any{
			"description": agent.Description,
		})
	}
	o.notifyTranscriptUpdated()

	o.updateSession(true)
}

// handleItemCreated registers a new conversation item exactly once. Repeat
// announcements for an id already in the transcript are dropped, so retries
// on the remote side cannot duplicate history. Every created item joins the
// pending registry, including role-less ones like function calls and their
// outputs, so a hand-off can delete the complete remote conversation.
func (o *Orchestrator) handleItemCreated(event realtime.ServerEvent) {
	item := event.Item
	if item == nil || item.ID == "" {
		return
	}
	if o.transcript.has(item.ID) {
		return
	}
	o.registerPendingItem(item.ID)

	if item.Role == "" {
		return
	}

	text := item.Text()
	if item.Role == "user" && text == "" {
		text = transcribingPlaceholder
	}

	if o.transcript.addMessage(item.ID, item.Role, text, false) {
		o.notifyTranscriptUpdated()
	}
}

// handleInputTranscriptionDone replaces a user message's placeholder with the
// final transcription. Empty or whitespace-only transcriptions render as an
// inaudible marker rather than an empty bubble.
func (o *Orchestrator) handleInputTranscriptionDone(event realtime.ServerEvent) {
	if event.ItemID == "" {
		return
	}

	finalText := event.Transcript
	if strings.TrimSpace(finalText) == "" {
		finalText = inaudibleMarker
	}

	changed := o.transcript.setMessageText(event.ItemID, finalText)
	changed = o.transcript.updateStatus(event.ItemID, ItemStatusDone) || changed
	if changed {
		o.notifyTranscriptUpdated()
	}
}

// handleAudioTranscriptDelta appends streamed assistant speech to the
// transcript and fires a moderation check at every word-count checkpoint.
// Checkpoints are best effort: a delta carrying several words at once can
// step over a boundary without triggering.
func (o *Orchestrator) handleAudioTranscriptDelta(event realtime.ServerEvent) {
	if event.ItemID == "" || event.Delta == "" {
		return
	}

	if !o.transcript.has(event.ItemID) {
		o.transcript.addMessage(event.ItemID, "assistant", "", false)
		o.registerPendingItem(event.ItemID)
	}

	if !o.transcript.appendMessageText(event.ItemID, event.Delta) {
		return
	}
	o.notifyTranscriptUpdated()

	accumulated := o.assistantDeltas[event.ItemID] + event.Delta
	o.assistantDeltas[event.ItemID] = accumulated
	if words := len(strings.Fields(accumulated)); words > 0 && words%moderationCheckpointWords == 0 {
		o.runModeration(event.ItemID, accumulated)
	}
}

func (o *Orchestrator) handleAudioDelta(event realtime.ServerEvent) {
	if event.Delta == "" {
		return
	}

	o.mu.RLock()
	session := o.session
	o.mu.RUnlock()
	if session == nil {
		return
	}

	if err := session.PlayAudio(event.Delta); err != nil {
		logger.Error("Failed to queue output audio", "error", err)
	}
}

// handleResponseDone closes out a finished response: function call items are
// routed to their executors and finished assistant messages get a final
// moderation pass over their complete text.
func (o *Orchestrator) handleResponseDone(event realtime.ServerEvent) {
	if event.Response == nil {
		return
	}

	for _, item := range event.Response.Output {
		switch item.Type {
		case "function_call":
			o.handleFunctionCall(item)
		case "message":
			if item.Role != "assistant" || item.ID == "" {
				continue
			}
			if text, ok := o.transcript.messageText(item.ID); ok && strings.TrimSpace(text) != "" {
				o.runModeration(item.ID, text)
			}
		}
	}
}

func (o *Orchestrator) handleOutputItemDone(event realtime.ServerEvent) {
	item := event.Item
	if item == nil || item.ID == "" {
		return
	}

	if o.transcript.updateStatus(item.ID, ItemStatusDone) {
		o.notifyTranscriptUpdated()
	}

	if item.Role == "assistant" {
		o.maybeExtractPatientInfo()
	}
}
