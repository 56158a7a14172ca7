// Package orchestration runs a realtime voice session against a set of
// hand-off capable agents: it owns the session transport, dispatches server
// events, routes function calls to local executors, moderates assistant
// speech and keeps the conversation transcript.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/corgivoice/voice-core/core/agents"
	"github.com/corgivoice/voice-core/core/audio"
	"github.com/corgivoice/voice-core/core/patientinfo"
	"github.com/corgivoice/voice-core/core/realtime"
)

type SessionStatus string

const (
	StatusDisconnected SessionStatus = "DISCONNECTED"
	StatusConnecting   SessionStatus = "CONNECTING"
	StatusConnected    SessionStatus = "CONNECTED"
)

var (
	ErrSessionActive = errors.New("session is already connecting or connected")
	ErrNotConnected  = errors.New("session is not connected")
	ErrNoTransport   = errors.New("no session transport configured")
)

// Orchestrator drives one realtime conversation at a time. All server events
// and state transitions funnel through a single session loop goroutine;
// public accessors read mutex-guarded snapshots.
type Orchestrator struct {
	agents *agents.Set

	openSession        SessionOpener
	classifier         Classifier
	extractor          Extractor
	voice              string
	transcriptionModel string
	now                func() time.Time

	transcript *transcriptStore
	events     *eventLog

	mu                sync.RWMutex
	status            SessionStatus
	activeAgent       *agents.Agent
	pushToTalk        bool
	pttUserSpeaking   bool
	outputAudioActive bool
	patientInfo       patientinfo.Info
	session           SessionChannel
	loop              *sessionLoop
	callbacks         ConnectOptions

	// Owned by the session loop goroutine; never touched elsewhere.
	pendingItems    []string
	assistantDeltas map[string]string

	extracting  atomic.Bool
	baseContext context.Context
}

func NewOrchestrator(agentSet *agents.Set, opts ...OrchestratorOption) *Orchestrator {
	now := time.Now
	o := &Orchestrator{
		agents:             agentSet,
		voice:              "sage",
		transcriptionModel: "whisper-1",
		now:                now,
		transcript:         newTranscriptStore(now),
		events:             newEventLog(now),
		status:             StatusDisconnected,
		activeAgent:        agentSet.Default(),
		assistantDeltas:    map[string]string{},
		baseContext:        context.Background(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Connect opens the realtime session and starts the session loop. It returns
// once the transport is open; the status moves to connected when the remote
// side confirms session creation.
func (o *Orchestrator) Connect(ctx context.Context, opts ...ConnectOption) error {
	ctx, span := tracer.Start(ctx, "orchestration.connect")
	defer span.End()

	if o.openSession == nil {
		return ErrNoTransport
	}

	o.mu.Lock()
	if o.status != StatusDisconnected {
		o.mu.Unlock()
		return ErrSessionActive
	}
	o.status = StatusConnecting
	o.callbacks = ConnectOptions{}
	for _, opt := range opts {
		opt(&o.callbacks)
	}
	loop := newSessionLoop(o.processLoopItem)
	o.loop = loop
	o.pendingItems = nil
	o.assistantDeltas = map[string]string{}
	o.baseContext = context.WithoutCancel(ctx)
	onStatusChanged := o.callbacks.onStatusChanged
	o.mu.Unlock()

	if onStatusChanged != nil {
		onStatusChanged(StatusConnecting)
	}

	session, err := o.openSession(ctx, realtime.SessionCallbacks{
		OnEvent: func(raw []byte) {
			loop.enqueue(serverEventItem{raw: raw})
		},
		OnClosed: func(err error) {
			loop.enqueue(transportClosedItem{err: err})
		},
	})
	if err != nil {
		span.RecordError(err)
		o.setStatus(StatusDisconnected)
		return fmt.Errorf("failed to open realtime session: %w", err)
	}

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()

	loop.start()
	logger.InfoContext(ctx, "Realtime session transport open",
		"agent", o.ActiveAgent(),
	)
	return nil
}

// Disconnect tears the session down and waits for the session loop goroutine
// to exit, so no event processing outlives the call. Safe to call multiple
// times.
func (o *Orchestrator) Disconnect() {
	o.teardown(true)
}

// teardown closes the transport and ends the loop. waitForLoop must be false
// when called from the loop goroutine itself, which cannot wait for its own
// exit.
func (o *Orchestrator) teardown(waitForLoop bool) {
	o.mu.Lock()
	if o.status == StatusDisconnected {
		o.mu.Unlock()
		return
	}
	session := o.session
	loop := o.loop
	o.session = nil
	o.status = StatusDisconnected
	o.pttUserSpeaking = false
	o.outputAudioActive = false
	onStatusChanged := o.callbacks.onStatusChanged
	o.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if loop != nil {
		loop.end()
		if waitForLoop {
			loop.waitUntilEnded()
		}
	}
	if onStatusChanged != nil {
		onStatusChanged(StatusDisconnected)
	}
}

func (o *Orchestrator) Status() SessionStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) ActiveAgent() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.activeAgent == nil {
		return ""
	}
	return o.activeAgent.Name
}

func (o *Orchestrator) PushToTalk() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pushToTalk
}

func (o *Orchestrator) OutputAudioActive() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.outputAudioActive
}

// Transcript returns a deep copy of the ordered conversation history.
func (o *Orchestrator) Transcript() []TranscriptItem {
	return o.transcript.snapshot()
}

// Events returns a deep copy of the protocol event log.
func (o *Orchestrator) Events() []LoggedEvent {
	return o.events.snapshot()
}

func (o *Orchestrator) PatientInfo() patientinfo.Info {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.patientInfo
}

// SendUserText interrupts any assistant speech in progress and submits a
// typed user message, asking for a response.
func (o *Orchestrator) SendUserText(text string) error {
	if o.Status() != StatusConnected {
		return ErrNotConnected
	}

	o.cancelAssistantSpeech()
	o.sendClientEvent(realtime.CreateUserMessage("", text), "")
	o.sendClientEvent(realtime.CreateResponse(), "(trigger response after user text message)")
	return nil
}

// StartTalking begins a push-to-talk turn: assistant speech is interrupted
// and the input audio buffer is reset for the new utterance.
func (o *Orchestrator) StartTalking() error {
	o.mu.Lock()
	if o.status != StatusConnected || !o.pushToTalk {
		o.mu.Unlock()
		return ErrNotConnected
	}
	o.pttUserSpeaking = true
	o.mu.Unlock()

	o.cancelAssistantSpeech()
	o.sendClientEvent(realtime.ClearInputAudioBuffer(), "(push-to-talk start)")
	return nil
}

// StopTalking ends a push-to-talk turn, committing the buffered audio and
// requesting a response. A release without a preceding StartTalking is
// ignored.
func (o *Orchestrator) StopTalking() error {
	o.mu.Lock()
	if o.status != StatusConnected || !o.pttUserSpeaking {
		o.mu.Unlock()
		return nil
	}
	o.pttUserSpeaking = false
	o.mu.Unlock()

	o.sendClientEvent(realtime.CommitInputAudioBuffer(), "(push-to-talk stop)")
	o.sendClientEvent(realtime.CreateResponse(), "(trigger response after push-to-talk)")
	return nil
}

// SetPushToTalk switches between push-to-talk and server-side voice activity
// detection. When a session is live the change is applied to it immediately.
func (o *Orchestrator) SetPushToTalk(enabled bool) {
	o.mu.Lock()
	if o.pushToTalk == enabled {
		o.mu.Unlock()
		return
	}
	o.pushToTalk = enabled
	if !enabled {
		o.pttUserSpeaking = false
	}
	loop := o.loop
	connected := o.status == StatusConnected
	o.mu.Unlock()

	if connected && loop != nil {
		loop.enqueue(reconfigureItem{})
	}
}

// SwitchAgent requests a user-initiated hand-off to the named agent. The
// switch is applied on the session loop so it cannot interleave with a
// concurrent model-initiated transfer.
func (o *Orchestrator) SwitchAgent(name string) error {
	if _, ok := o.agents.Get(name); !ok {
		return fmt.Errorf("unknown agent %q", name)
	}

	o.mu.RLock()
	loop := o.loop
	connected := o.status == StatusConnected
	o.mu.RUnlock()

	if !connected || loop == nil {
		// Offline switch takes effect on the next connect.
		o.mu.Lock()
		agent, _ := o.agents.Get(name)
		o.activeAgent = agent
		onAgentChanged := o.callbacks.onAgentChanged
		o.mu.Unlock()
		if onAgentChanged != nil {
			onAgentChanged(name)
		}
		return nil
	}

	loop.enqueue(switchAgentItem{destination: name})
	return nil
}

func (o *Orchestrator) processLoopItem(item any) {
	switch item := item.(type) {
	case serverEventItem:
		o.handleServerEvent(item.raw)
	case moderationResolvedItem:
		o.handleModerationResolved(item)
	case toolResultItem:
		o.handleToolResult(item)
	case extractionResolvedItem:
		o.handleExtractionResolved(item)
	case switchAgentItem:
		o.handleAgentSwitch(item.destination)
	case reconfigureItem:
		o.updateSession(false)
	case transportClosedItem:
		o.handleTransportClosed(item.err)
	default:
		logger.Warn("Dropping unknown session loop item", "type", fmt.Sprintf("%T", item))
	}
}

func (o *Orchestrator) handleTransportClosed(err error) {
	if err != nil {
		logger.Error("Realtime session transport closed", "error", err)
	}

	o.mu.Lock()
	alreadyDown := o.status == StatusDisconnected
	o.mu.Unlock()
	if alreadyDown {
		return
	}
	o.teardown(false)
}

func (o *Orchestrator) handleAgentSwitch(destination string) {
	agent, ok := o.agents.Get(destination)
	if !ok {
		return
	}

	o.mu.Lock()
	o.activeAgent = agent
	onAgentChanged := o.callbacks.onAgentChanged
	o.mu.Unlock()
	if onAgentChanged != nil {
		onAgentChanged(agent.Name)
	}

	o.transcript.addBreadcrumb("Agent: "+agent.Name, map[string]any{
		"description": agent.Description,
	})
	o.notifyTranscriptUpdated()
	o.updateSession(true)
}

func (o *Orchestrator) setStatus(status SessionStatus) {
	o.mu.Lock()
	if o.status == status {
		o.mu.Unlock()
		return
	}
	o.status = status
	onStatusChanged := o.callbacks.onStatusChanged
	o.mu.Unlock()

	if onStatusChanged != nil {
		onStatusChanged(status)
	}
}

// sendClientEvent logs the outbound event and hands it to the transport. An
// event sent without an open transport is recorded with an error marker
// instead, matching what a diagnostics reader needs to reconstruct the
// session.
func (o *Orchestrator) sendClientEvent(event realtime.ClientEvent, suffix string) {
	o.mu.RLock()
	session := o.session
	o.mu.RUnlock()

	if session == nil {
		marker := "error.data_channel_not_open"
		if suffix != "" {
			marker = suffix + " " + marker
		}
		o.events.logClientEvent(event.Type, marker, event)
		logger.Warn("Dropping client event, transport not open", "type", event.Type)
		return
	}

	o.events.logClientEvent(event.Type, suffix, event)
	if err := session.Send(event); err != nil {
		logger.Error("Failed to send client event", "type", event.Type, "error", err)
	}
}

// updateSession pushes the full session configuration for the active agent:
// instructions with collected facts substituted in, voice, audio formats,
// transcription and the tool declarations. shouldTriggerResponse seeds the
// agent's first turn with a hidden simulated greeting from the user.
func (o *Orchestrator) updateSession(shouldTriggerResponse bool) {
	o.mu.RLock()
	agent := o.activeAgent
	pushToTalk := o.pushToTalk
	facts := o.patientInfo
	session := o.session
	o.mu.RUnlock()

	if agent == nil {
		return
	}

	o.sendClientEvent(realtime.ClearInputAudioBuffer(), "(clear audio buffer on session update)")

	var turnDetection *realtime.TurnDetection
	if !pushToTalk {
		turnDetection = realtime.ServerVAD()
	}

	format := audio.DefaultFormat
	if session != nil {
		if withEncoding, ok := session.(interface{ EncodingInfo() audio.EncodingInfo }); ok {
			format = withEncoding.EncodingInfo().Format.Name()
		}
	}

	summary := ""
	if !facts.IsZero() {
		summary = facts.Summary()
	}

	o.sendClientEvent(realtime.SessionUpdate(realtime.SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            agent.ResolveInstructions(summary),
		Voice:                   o.voice,
		InputAudioFormat:        format,
		OutputAudioFormat:       format,
		InputAudioTranscription: &realtime.TranscriptionConfig{Model: o.transcriptionModel},
		TurnDetection:           turnDetection,
		Tools:                   agent.Declarations(),
	}), "")

	if shouldTriggerResponse {
		o.sendSimulatedUserMessage("hi", true)
	}
}

// sendSimulatedUserMessage plants a user message the user never typed, used
// to make the agent speak first. Hidden messages stay out of the visible
// transcript but still reach the model.
func (o *Orchestrator) sendSimulatedUserMessage(text string, hidden bool) {
	id := uuid.NewString()[:32]
	o.transcript.addMessage(id, "user", text, hidden)
	o.registerPendingItem(id)
	o.notifyTranscriptUpdated()

	o.sendClientEvent(realtime.CreateUserMessage(id, text), "(simulated user text message)")
	o.sendClientEvent(realtime.CreateResponse(), "(trigger response after simulated user text message)")
}

// registerPendingItem records a remote conversation item id for deletion on
// the next agent hand-off. A repeated id is kept once. Runs on the session
// loop goroutine only.
func (o *Orchestrator) registerPendingItem(id string) {
	for _, existing := range o.pendingItems {
		if existing == id {
			return
		}
	}
	o.pendingItems = append(o.pendingItems, id)
}

// cancelAssistantSpeech interrupts the assistant: an in-progress response is
// cancelled and any audio already buffered on the remote side or queued
// locally is discarded.
func (o *Orchestrator) cancelAssistantSpeech() {
	last, ok := o.transcript.lastAssistantMessage()
	if ok && last.Status == ItemStatusInProgress {
		o.sendClientEvent(realtime.CancelResponse(), "(cancel due to user interruption)")
	}

	o.mu.RLock()
	outputActive := o.outputAudioActive
	session := o.session
	o.mu.RUnlock()

	if outputActive {
		o.sendClientEvent(realtime.ClearOutputAudioBuffer(), "(cancel due to user interruption)")
		if session != nil {
			session.ClearPlayback()
		}
	}
}

func (o *Orchestrator) notifyTranscriptUpdated() {
	o.mu.RLock()
	callback := o.callbacks.onTranscriptUpdated
	o.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (o *Orchestrator) setOutputAudioActive(active bool) {
	o.mu.Lock()
	if o.outputAudioActive == active {
		o.mu.Unlock()
		return
	}
	o.outputAudioActive = active
	callback := o.callbacks.onOutputAudioActiveChanged
	o.mu.Unlock()
	if callback != nil {
		callback(active)
	}
}

// maybeExtractPatientInfo kicks off a background fact extraction over the
// conversation so far. At most one extraction runs at a time; a finished turn
// arriving mid-extraction is simply covered by the next one.
func (o *Orchestrator) maybeExtractPatientInfo() {
	o.mu.RLock()
	agent := o.activeAgent
	loop := o.loop
	o.mu.RUnlock()

	if o.extractor == nil || agent == nil || !agent.CollectFacts || loop == nil {
		return
	}

	conversation := o.transcript.conversationText()
	if strings.TrimSpace(conversation) == "" {
		return
	}

	if !o.extracting.CompareAndSwap(false, true) {
		return
	}

	go func() {
		ctx, span := tracer.Start(o.baseContext, "orchestration.extractPatientInfo")
		defer span.End()

		info, err := o.extractor.Extract(ctx, conversation)
		if err != nil || info == nil {
			o.extracting.Store(false)
			if err != nil {
				span.RecordError(err)
				logger.Error("Patient info extraction failed", "error", err)
			}
			return
		}

		if !loop.enqueue(extractionResolvedItem{info: *info}) {
			o.extracting.Store(false)
		}
	}()
}

func (o *Orchestrator) handleExtractionResolved(item extractionResolvedItem) {
	o.extracting.Store(false)

	if item.info.IsZero() {
		return
	}

	o.mu.Lock()
	o.patientInfo = item.info
	callback := o.callbacks.onPatientInfoUpdated
	o.mu.Unlock()

	if callback != nil {
		callback(item.info)
	}
}
