package orchestration

import (
	"testing"
	"time"

	"github.com/corgivoice/voice-core/core/guardrail"
)

func TestAddMessageIsIdempotentPerID(t *testing.T) {
	store := newTranscriptStore(time.Now)

	if !store.addMessage("item-1", "user", "hello", false) {
		t.Fatalf("expected first add to succeed")
	}
	if store.addMessage("item-1", "user", "hello again", false) {
		t.Fatalf("expected repeated add for the same id to be dropped")
	}

	items := store.snapshot()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Text != "hello" {
		t.Fatalf("expected original text to survive the replay, got %q", items[0].Text)
	}
}

func TestAppendMessageTextConcatenatesInOrder(t *testing.T) {
	store := newTranscriptStore(time.Now)
	store.addMessage("item-1", "assistant", "", false)

	for _, delta := range []string{"Hello", ", ", "world"} {
		if !store.appendMessageText("item-1", delta) {
			t.Fatalf("expected append of %q to succeed", delta)
		}
	}

	text, ok := store.messageText("item-1")
	if !ok {
		t.Fatalf("expected message to exist")
	}
	if text != "Hello, world" {
		t.Fatalf("expected concatenated deltas, got %q", text)
	}
}

func TestAppendMessageTextClearsTranscribingPlaceholder(t *testing.T) {
	store := newTranscriptStore(time.Now)
	store.addMessage("item-1", "user", transcribingPlaceholder, false)

	store.appendMessageText("item-1", "actual words")

	text, _ := store.messageText("item-1")
	if text != "actual words" {
		t.Fatalf("expected placeholder to be replaced, got %q", text)
	}
}

func TestAppendMessageTextAfterDoneIsDropped(t *testing.T) {
	store := newTranscriptStore(time.Now)
	store.addMessage("item-1", "assistant", "final", false)
	store.updateStatus("item-1", ItemStatusDone)

	if store.appendMessageText("item-1", " late delta") {
		t.Fatalf("expected append after DONE to be dropped")
	}
	text, _ := store.messageText("item-1")
	if text != "final" {
		t.Fatalf("expected text to stay %q, got %q", "final", text)
	}
}

func TestSetModerationKeepsLongerSnapshot(t *testing.T) {
	store := newTranscriptStore(time.Now)
	store.addMessage("item-1", "assistant", "some longer assistant text", false)

	short := "some longer"
	long := "some longer assistant text"

	if !store.setModeration("item-1", long, guardrail.Result{Category: guardrail.CategoryNone}) {
		t.Fatalf("expected first moderation result to apply")
	}
	if store.setModeration("item-1", short, guardrail.Result{Category: guardrail.CategoryOffensive}) {
		t.Fatalf("expected result for a shorter snapshot to be dropped")
	}

	items := store.snapshot()
	if items[0].Moderation == nil {
		t.Fatalf("expected a moderation annotation")
	}
	if items[0].Moderation.Category != guardrail.CategoryNone {
		t.Fatalf("expected longer-snapshot category to survive, got %q", items[0].Moderation.Category)
	}
	if items[0].Moderation.TestText != long {
		t.Fatalf("expected longer test text to survive, got %q", items[0].Moderation.TestText)
	}
}

func TestSetModerationUpgradesToLongerSnapshot(t *testing.T) {
	store := newTranscriptStore(time.Now)
	store.addMessage("item-1", "assistant", "some longer assistant text", false)

	store.setModeration("item-1", "some longer", guardrail.Result{Category: guardrail.CategoryNone})
	if !store.setModeration("item-1", "some longer assistant text", guardrail.Result{Category: guardrail.CategoryViolence}) {
		t.Fatalf("expected result for a longer snapshot to apply")
	}

	items := store.snapshot()
	if items[0].Moderation.Category != guardrail.CategoryViolence {
		t.Fatalf("expected upgraded category, got %q", items[0].Moderation.Category)
	}
}

func TestSetModerationForUnknownItemIsDropped(t *testing.T) {
	store := newTranscriptStore(time.Now)

	if store.setModeration("gone", "text", guardrail.Result{Category: guardrail.CategoryNone}) {
		t.Fatalf("expected moderation for an unknown item to be dropped")
	}
}

func TestClearHistoryEmptiesStore(t *testing.T) {
	store := newTranscriptStore(time.Now)
	store.addMessage("item-1", "user", "hello", false)
	store.addBreadcrumb("note", nil)

	store.clearHistory()

	if items := store.snapshot(); len(items) != 0 {
		t.Fatalf("expected empty transcript, got %d items", len(items))
	}
	if store.has("item-1") {
		t.Fatalf("expected cleared ids to be reusable")
	}
	if !store.addMessage("item-1", "user", "fresh", false) {
		t.Fatalf("expected add after clear to succeed")
	}
}

func TestSnapshotIsDetachedFromStore(t *testing.T) {
	store := newTranscriptStore(time.Now)
	store.addBreadcrumb("note", map[string]any{"key": "value"})

	snapshot := store.snapshot()
	snapshot[0].Data["key"] = "mutated"

	if store.snapshot()[0].Data["key"] != "value" {
		t.Fatalf("expected snapshot mutation not to reach the store")
	}
}

func TestConversationTextSkipsHiddenAndBreadcrumbs(t *testing.T) {
	store := newTranscriptStore(time.Now)
	store.addMessage("item-1", "user", "hi", true)
	store.addMessage("item-2", "assistant", "Hello, how can I help?", false)
	store.addBreadcrumb("Agent: someone", nil)
	store.addMessage("item-3", "user", "I need a placement", false)

	text := store.conversationText()
	if text != "assistant: Hello, how can I help?\nuser: I need a placement" {
		t.Fatalf("unexpected conversation text: %q", text)
	}
}

func TestLastAssistantMessage(t *testing.T) {
	store := newTranscriptStore(time.Now)
	if _, ok := store.lastAssistantMessage(); ok {
		t.Fatalf("expected no assistant message in an empty store")
	}

	store.addMessage("item-1", "assistant", "first", false)
	store.addMessage("item-2", "user", "question", false)
	store.addMessage("item-3", "assistant", "second", false)

	last, ok := store.lastAssistantMessage()
	if !ok {
		t.Fatalf("expected an assistant message")
	}
	if last.ItemID != "item-3" {
		t.Fatalf("expected most recent assistant message, got %q", last.ItemID)
	}
}
