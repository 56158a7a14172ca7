package orchestration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/corgivoice/voice-core/core/agents"
	"github.com/corgivoice/voice-core/core/audio"
	"github.com/corgivoice/voice-core/core/guardrail"
	"github.com/corgivoice/voice-core/core/patientinfo"
	"github.com/corgivoice/voice-core/core/realtime"
)

// fakeSession records everything the orchestrator sends instead of talking to
// a live endpoint.
type fakeSession struct {
	mu             sync.Mutex
	sent           []realtime.ClientEvent
	played         []string
	playbackClears int
	closed         bool
}

func (s *fakeSession) Send(event realtime.ClientEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, event)
	return nil
}

func (s *fakeSession) PlayAudio(base64Audio string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, base64Audio)
	return nil
}

func (s *fakeSession) ClearPlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playbackClears++
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (s *fakeSession) sentEvents() []realtime.ClientEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]realtime.ClientEvent(nil), s.sent...)
}

func (s *fakeSession) sentOfType(eventType string) []realtime.ClientEvent {
	var matches []realtime.ClientEvent
	for _, event := range s.sentEvents() {
		if event.Type == eventType {
			matches = append(matches, event)
		}
	}
	return matches
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubClassifier struct {
	mu     sync.Mutex
	texts  []string
	result guardrail.Result
}

func (c *stubClassifier) Classify(_ context.Context, text string) (*guardrail.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	result := c.result
	return &result, nil
}

func (c *stubClassifier) classified() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type stubExtractor struct {
	mu            sync.Mutex
	conversations []string
	info          patientinfo.Info
}

func (e *stubExtractor) Extract(_ context.Context, conversation string) (*patientinfo.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conversations = append(e.conversations, conversation)
	info := e.info
	return &info, nil
}

func (e *stubExtractor) extracted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.conversations...)
}

func testAgentSet(t *testing.T) *agents.Set {
	t.Helper()

	collector := &agents.Agent{
		Name:         "collector",
		Description:  "Collects information from the caller.",
		Instructions: "Collect information.",
		CollectFacts: true,
		Tools: []agents.Tool{
			agents.NewTool("recordNote", "Record a note about the caller",
				map[string]realtime.ParameterSchema{
					"note": {Type: "string", Description: "The note to record"},
				},
				func(_ context.Context, arguments struct {
					Note string `json:"note"`
				}, _ agents.Call) (any, error) {
					return map[string]any{"ok": true, "note": arguments.Note}, nil
				}),
		},
	}
	booking := &agents.Agent{
		Name:         "booking",
		Description:  "Calls facilities on the caller's behalf.",
		Instructions: "Book a placement.\n\n" + agents.ClientInfoPlaceholder,
		Greeting:     "Hello, this is the facility front desk.",
	}
	collector.Downstream = []*agents.Agent{booking}

	set, err := agents.NewSet(collector, booking)
	if err != nil {
		t.Fatalf("failed to build agent set: %v", err)
	}
	return set
}

// sessionHarness is a connected orchestrator wired to a fakeSession, with
// direct access to the transport-side callbacks for injecting server events.
type sessionHarness struct {
	orchestrator   *Orchestrator
	session        *fakeSession
	deliver        func(raw []byte)
	closeTransport func(err error)
}

func newHarness(t *testing.T, opts []OrchestratorOption, connectOpts ...ConnectOption) *sessionHarness {
	t.Helper()

	h := &sessionHarness{session: &fakeSession{}}
	opener := func(_ context.Context, callbacks realtime.SessionCallbacks) (SessionChannel, error) {
		h.deliver = callbacks.OnEvent
		h.closeTransport = callbacks.OnClosed
		return h.session, nil
	}

	h.orchestrator = NewOrchestrator(testAgentSet(t),
		append([]OrchestratorOption{WithSessionOpener(opener)}, opts...)...)
	if err := h.orchestrator.Connect(context.Background(), connectOpts...); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(h.orchestrator.Disconnect)
	return h
}

func (h *sessionHarness) deliverEvent(t *testing.T, event map[string]any) {
	t.Helper()
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to encode server event: %v", err)
	}
	h.deliver(raw)
}

// openSession drives the harness through session creation and waits for the
// initial configuration to go out.
func (h *sessionHarness) openSession(t *testing.T) {
	t.Helper()
	h.deliverEvent(t, map[string]any{
		"type":    "session.created",
		"session": map[string]any{"id": "sess-test"},
	})
	waitUntil(t, "initial session configuration", func() bool {
		return len(h.session.sentOfType("session.update")) > 0 &&
			len(h.session.sentOfType("response.create")) > 0
	})
}

func waitUntil(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}
