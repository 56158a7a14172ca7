package orchestration

import (
	"strings"
	"testing"

	"github.com/corgivoice/voice-core/core/agents"
	"github.com/corgivoice/voice-core/core/patientinfo"
)

func deliverTransferCall(t *testing.T, h *sessionHarness, destination string) {
	t.Helper()
	deliverFunctionCall(t, h, "transferAgents", "transfer-1",
		`{"rationale_for_transfer":"caller is ready to book",`+
			`"conversation_context":"Alma, 82, needs memory care",`+
			`"destination_agent":"`+destination+`"}`)
}

func TestAgentTransferFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.openSession(t)

	// Build up conversation items under the first agent; each becomes part of
	// the pending registry alongside the simulated hi.
	h.deliverEvent(t, map[string]any{
		"type": "conversation.item.created",
		"item": map[string]any{
			"id":   "user-1",
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": "we need a memory care place"},
			},
		},
	})
	h.deliverEvent(t, map[string]any{
		"type":    "response.audio_transcript.delta",
		"item_id": "assist-1",
		"delta":   "Of course, let me transfer you.",
	})
	waitUntil(t, "conversation items", func() bool {
		return h.orchestrator.transcript.has("assist-1")
	})

	deliverTransferCall(t, h, "booking")

	waitUntil(t, "transfer output", func() bool {
		for _, event := range h.session.sentOfType("conversation.item.create") {
			if event.Item != nil && event.Item.Type == "function_call_output" &&
				event.Item.CallID == "transfer-1" {
				return strings.Contains(event.Item.Output, `"did_transfer":true`)
			}
		}
		return false
	})

	if h.orchestrator.ActiveAgent() != "booking" {
		t.Fatalf("expected the booking agent to be active, got %q", h.orchestrator.ActiveAgent())
	}

	// One deletion per pending item: the simulated hi plus the two
	// conversation items.
	deletes := h.session.sentOfType("conversation.item.delete")
	if len(deletes) != 3 {
		t.Fatalf("expected 3 item deletions, got %d", len(deletes))
	}
	deleted := map[string]bool{}
	for _, event := range deletes {
		deleted[event.ItemID] = true
	}
	if !deleted["user-1"] || !deleted["assist-1"] {
		t.Fatalf("expected the conversation items to be deleted, got %v", deleted)
	}

	// Deletions come before the reconfiguration, which comes before the
	// greeting and its response request.
	var order []string
	for _, event := range h.session.sentEvents() {
		switch event.Type {
		case "conversation.item.delete":
			order = append(order, "delete")
		case "session.update":
			order = append(order, "update")
		case "conversation.item.create":
			if event.Item != nil && event.Item.Type == "message" &&
				strings.Contains(event.Item.Content[0].Text, "facility front desk") {
				order = append(order, "greeting")
			}
		}
	}
	sequence := strings.Join(order, ",")
	if !strings.HasSuffix(sequence, "delete,delete,delete,update,greeting") {
		t.Fatalf("unexpected transfer event order: %s", sequence)
	}

	// The old conversation is gone; the transfer breadcrumb and the greeting
	// seed the new one.
	var sawBreadcrumb, sawGreeting bool
	for _, item := range h.orchestrator.Transcript() {
		if item.ItemID == "user-1" || item.ItemID == "assist-1" {
			t.Fatalf("expected pre-transfer items to be cleared, found %q", item.ItemID)
		}
		if item.Type == ItemTypeBreadcrumb &&
			strings.HasPrefix(item.Text, "Agent Transfer: collector -> booking") {
			sawBreadcrumb = true
			if item.Data["rationale_for_transfer"] != "caller is ready to book" {
				t.Fatalf("expected transfer rationale in breadcrumb data, got %v", item.Data)
			}
		}
		if item.Type == ItemTypeMessage && !item.Hidden &&
			strings.Contains(item.Text, "facility front desk") {
			sawGreeting = true
		}
	}
	if !sawBreadcrumb {
		t.Fatalf("expected a transfer breadcrumb")
	}
	if !sawGreeting {
		t.Fatalf("expected the destination greeting as a visible message")
	}
}

func TestToolCallItemsAreClearedOnTransfer(t *testing.T) {
	h := newHarness(t, nil)
	h.openSession(t)

	// Tool call items and their output echoes arrive without a role; they are
	// still part of the remote conversation a hand-off has to clear.
	h.deliverEvent(t, map[string]any{
		"type": "conversation.item.created",
		"item": map[string]any{"id": "fc-1", "type": "function_call", "call_id": "call-1"},
	})
	h.deliverEvent(t, map[string]any{
		"type": "conversation.item.created",
		"item": map[string]any{"id": "fco-1", "type": "function_call_output", "call_id": "call-1"},
	})
	// A repeated announcement must not produce a second deletion.
	h.deliverEvent(t, map[string]any{
		"type": "conversation.item.created",
		"item": map[string]any{"id": "fc-1", "type": "function_call", "call_id": "call-1"},
	})

	deliverTransferCall(t, h, "booking")
	waitUntil(t, "transfer complete", func() bool {
		return h.orchestrator.ActiveAgent() == "booking"
	})

	deleted := map[string]int{}
	for _, event := range h.session.sentOfType("conversation.item.delete") {
		deleted[event.ItemID]++
	}
	if deleted["fc-1"] != 1 || deleted["fco-1"] != 1 {
		t.Fatalf("expected one deletion per tool call item, got %v", deleted)
	}
}

func TestTransferToGreetinglessAgentSeedsResponse(t *testing.T) {
	h := newHarness(t, nil)
	h.openSession(t)

	deliverTransferCall(t, h, "booking")
	waitUntil(t, "first transfer", func() bool {
		return h.orchestrator.ActiveAgent() == "booking"
	})

	countOpeners := func() int {
		count := 0
		for _, event := range h.session.sentOfType("conversation.item.create") {
			if event.Item != nil && event.Item.Type == "message" &&
				len(event.Item.Content) > 0 && event.Item.Content[0].Text == "hi" {
				count++
			}
		}
		return count
	}
	openersBefore := countOpeners()
	responsesBefore := len(h.session.sentOfType("response.create"))

	deliverFunctionCall(t, h, "transferAgents", "transfer-2",
		`{"rationale_for_transfer":"the family has more details to share",`+
			`"conversation_context":"Alma, 82, needs memory care",`+
			`"destination_agent":"collector"}`)
	waitUntil(t, "second transfer", func() bool {
		return h.orchestrator.ActiveAgent() == "collector"
	})

	// The collector has no scripted greeting, so a hidden opener seeds its
	// first turn and a response is still requested.
	waitUntil(t, "seeded opener", func() bool {
		return countOpeners() > openersBefore &&
			len(h.session.sentOfType("response.create")) > responsesBefore
	})

	for _, item := range h.orchestrator.Transcript() {
		if item.Type == ItemTypeMessage && item.Role == "user" &&
			item.Text == "hi" && !item.Hidden {
			t.Fatalf("expected the seeded opener to stay hidden")
		}
	}
}

func TestTransferToUnknownAgentIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.openSession(t)

	deliverTransferCall(t, h, "nobody")

	waitUntil(t, "rejection output", func() bool {
		for _, event := range h.session.sentOfType("conversation.item.create") {
			if event.Item != nil && event.Item.Type == "function_call_output" &&
				event.Item.CallID == "transfer-1" {
				return strings.Contains(event.Item.Output, `"did_transfer":false`)
			}
		}
		return false
	})

	if h.orchestrator.ActiveAgent() != "collector" {
		t.Fatalf("expected the active agent to be unchanged, got %q", h.orchestrator.ActiveAgent())
	}
	if len(h.session.sentOfType("conversation.item.delete")) != 0 {
		t.Fatalf("expected no deletions for a rejected transfer")
	}
}

func TestCollectedFactsSurviveTransfer(t *testing.T) {
	extractor := &stubExtractor{info: patientinfo.Info{Name: "Alma", CareLevel: "memory care"}}
	h := newHarness(t, []OrchestratorOption{WithExtractor(extractor)})
	h.openSession(t)

	h.deliverEvent(t, map[string]any{
		"type":    "response.audio_transcript.delta",
		"item_id": "assist-1",
		"delta":   "Got it, Alma needs memory care.",
	})
	h.deliverEvent(t, map[string]any{
		"type": "response.output_item.done",
		"item": map[string]any{"id": "assist-1", "type": "message", "role": "assistant"},
	})
	waitUntil(t, "facts collected", func() bool {
		return h.orchestrator.PatientInfo().Name == "Alma"
	})

	deliverTransferCall(t, h, "booking")
	waitUntil(t, "transfer complete", func() bool {
		return h.orchestrator.ActiveAgent() == "booking"
	})

	if h.orchestrator.PatientInfo().Name != "Alma" {
		t.Fatalf("expected collected facts to survive the transfer")
	}

	// The booking agent's instructions carry the interpolated facts.
	updates := h.session.sentOfType("session.update")
	last := updates[len(updates)-1]
	if !strings.Contains(last.Session.Instructions, "- Name: Alma") ||
		!strings.Contains(last.Session.Instructions, "- Care Level: memory care") {
		t.Fatalf("expected facts in the new agent's instructions, got %q", last.Session.Instructions)
	}
	if strings.Contains(last.Session.Instructions, agents.ClientInfoPlaceholder) {
		t.Fatalf("expected the placeholder to be replaced")
	}
}
