package orchestration

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/corgivoice/voice-core/core/agents"
	"github.com/corgivoice/voice-core/core/guardrail"
)

const (
	transcribingPlaceholder = "[Transcribing...]"
	inaudibleMarker         = "[inaudible]"
)

type ItemType string

const (
	ItemTypeMessage    ItemType = "MESSAGE"
	ItemTypeBreadcrumb ItemType = "BREADCRUMB"
)

type ItemStatus string

const (
	ItemStatusInProgress ItemStatus = "IN_PROGRESS"
	ItemStatusDone       ItemStatus = "DONE"
)

// ModerationAnnotation is the classification attached to a message. TestText
// is the snapshot the classification ran against; annotations computed
// against shorter snapshots never overwrite longer ones.
type ModerationAnnotation struct {
	Status    string
	TestText  string
	Category  guardrail.Category
	Rationale string
}

// TranscriptItem is one conversation entry: a streamed message or a
// diagnostic breadcrumb.
type TranscriptItem struct {
	ItemID     string
	Type       ItemType
	Role       string
	Text       string
	Data       map[string]any
	Status     ItemStatus
	Hidden     bool
	Moderation *ModerationAnnotation
	CreatedAt  time.Time
}

// transcriptStore is the ordered conversation log. It knows nothing about the
// transport; identifiers come from the remote protocol or are generated
// locally. Mutex-guarded so snapshots may be taken from outside the session
// loop.
type transcriptStore struct {
	mu    sync.RWMutex
	items []*TranscriptItem
	byID  map[string]*TranscriptItem

	now func() time.Time
}

func newTranscriptStore(now func() time.Time) *transcriptStore {
	if now == nil {
		now = time.Now
	}
	return &transcriptStore{byID: make(map[string]*TranscriptItem), now: now}
}

func (t *transcriptStore) has(itemID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byID[itemID]
	return ok
}

// addMessage creates a new message entry. Duplicate identifiers are ignored,
// which makes event replay idempotent.
func (t *transcriptStore) addMessage(itemID, role, text string, hidden bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[itemID]; exists {
		return false
	}

	item := &TranscriptItem{
		ItemID:    itemID,
		Type:      ItemTypeMessage,
		Role:      role,
		Text:      text,
		Status:    ItemStatusInProgress,
		Hidden:    hidden,
		CreatedAt: t.now(),
	}
	t.items = append(t.items, item)
	t.byID[itemID] = item
	return true
}

// appendMessageText concatenates a streaming delta in arrival order. Appends
// to DONE messages are dropped: displayed text is final once completed.
func (t *transcriptStore) appendMessageText(itemID, delta string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.byID[itemID]
	if !ok || item.Type != ItemTypeMessage || item.Status == ItemStatusDone {
		return false
	}
	if item.Text == transcribingPlaceholder {
		item.Text = ""
	}
	item.Text += delta
	return true
}

func (t *transcriptStore) setMessageText(itemID, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.byID[itemID]
	if !ok || item.Type != ItemTypeMessage {
		return false
	}
	item.Text = text
	return true
}

func (t *transcriptStore) updateStatus(itemID string, status ItemStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.byID[itemID]
	if !ok {
		return false
	}
	item.Status = status
	return true
}

func (t *transcriptStore) messageText(itemID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.byID[itemID]
	if !ok {
		return "", false
	}
	return item.Text, true
}

func (t *transcriptStore) addBreadcrumb(title string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item := &TranscriptItem{
		ItemID:    "breadcrumb-" + uuid.NewString(),
		Type:      ItemTypeBreadcrumb,
		Text:      title,
		Data:      data,
		Status:    ItemStatusDone,
		CreatedAt: t.now(),
	}
	t.items = append(t.items, item)
	t.byID[item.ItemID] = item
}

// setModeration attaches a classification. Returns false when the item no
// longer exists (late results for cleared history are discarded) or when a
// more complete annotation is already present.
func (t *transcriptStore) setModeration(itemID, testText string, result guardrail.Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.byID[itemID]
	if !ok || item.Type != ItemTypeMessage {
		return false
	}
	if item.Moderation != nil && len(item.Moderation.TestText) > len(testText) {
		return false
	}

	item.Moderation = &ModerationAnnotation{
		Status:    "DONE",
		TestText:  testText,
		Category:  result.Category,
		Rationale: result.Rationale,
	}
	return true
}

// lastAssistantMessage returns a copy of the most recent assistant message.
func (t *transcriptStore) lastAssistantMessage() (TranscriptItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.items) - 1; i >= 0; i-- {
		if t.items[i].Type == ItemTypeMessage && t.items[i].Role == "assistant" {
			return *t.items[i], true
		}
	}
	return TranscriptItem{}, false
}

func (t *transcriptStore) clearHistory() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = nil
	t.byID = make(map[string]*TranscriptItem)
}

// snapshot returns a deep copy of the transcript in append order.
func (t *transcriptStore) snapshot() []TranscriptItem {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make([]TranscriptItem, 0, len(t.items))
	for _, item := range t.items {
		var copied TranscriptItem
		if err := copier.CopyWithOption(&copied, item, copier.Option{DeepCopy: true}); err != nil {
			copied = *item
		}
		snapshot = append(snapshot, copied)
	}
	return snapshot
}

// entries renders the message items as the read-only view handed to tool
// executors.
func (t *transcriptStore) entries() []agents.TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]agents.TranscriptEntry, 0, len(t.items))
	for _, item := range t.items {
		if item.Type != ItemTypeMessage {
			continue
		}
		entries = append(entries, agents.TranscriptEntry{Role: item.Role, Text: item.Text})
	}
	return entries
}

// conversationText renders the visible messages as role-prefixed lines, the
// input for fact extraction.
func (t *transcriptStore) conversationText() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	for _, item := range t.items {
		if item.Type != ItemTypeMessage || item.Hidden {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(item.Role)
		b.WriteString(": ")
		b.WriteString(item.Text)
	}
	return b.String()
}
