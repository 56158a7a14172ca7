package orchestration

import (
	"context"
	"time"

	"github.com/corgivoice/voice-core/core/guardrail"
	"github.com/corgivoice/voice-core/core/patientinfo"
	"github.com/corgivoice/voice-core/core/realtime"
)

type OrchestratorOption func(*Orchestrator)

// SessionChannel is the transport surface the orchestrator drives once a
// session is open. *realtime.Session satisfies it.
type SessionChannel interface {
	Send(event realtime.ClientEvent) error
	PlayAudio(base64Audio string) error
	ClearPlayback()
	Close()
}

// SessionOpener establishes a realtime session and starts feeding raw server
// events into the provided callbacks.
type SessionOpener func(ctx context.Context, callbacks realtime.SessionCallbacks) (SessionChannel, error)

func WithRealtimeClient(client *realtime.Client) OrchestratorOption {
	return func(o *Orchestrator) {
		o.openSession = func(ctx context.Context, callbacks realtime.SessionCallbacks) (SessionChannel, error) {
			session, err := client.Open(ctx, callbacks)
			if err != nil {
				return nil, err
			}
			return session, nil
		}
	}
}

func WithSessionOpener(open SessionOpener) OrchestratorOption {
	return func(o *Orchestrator) { o.openSession = open }
}

type Classifier interface {
	Classify(ctx context.Context, text string) (*guardrail.Result, error)
}

func WithClassifier(classifier Classifier) OrchestratorOption {
	return func(o *Orchestrator) { o.classifier = classifier }
}

type Extractor interface {
	Extract(ctx context.Context, conversation string) (*patientinfo.Info, error)
}

func WithExtractor(extractor Extractor) OrchestratorOption {
	return func(o *Orchestrator) { o.extractor = extractor }
}

func WithVoice(voice string) OrchestratorOption {
	return func(o *Orchestrator) { o.voice = voice }
}

func WithTranscriptionModel(model string) OrchestratorOption {
	return func(o *Orchestrator) { o.transcriptionModel = model }
}

// WithPushToTalk starts the session in push-to-talk mode instead of
// server-side voice activity detection.
func WithPushToTalk() OrchestratorOption {
	return func(o *Orchestrator) { o.pushToTalk = true }
}

func withClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
		o.transcript.now = now
		o.events.now = now
	}
}

type ConnectOptions struct {
	onStatusChanged            func(status SessionStatus)
	onAgentChanged             func(agentName string)
	onTranscriptUpdated        func()
	onPatientInfoUpdated       func(info patientinfo.Info)
	onOutputAudioActiveChanged func(active bool)
}

type ConnectOption func(*ConnectOptions)

func WithStatusChangedCallback(callback func(status SessionStatus)) ConnectOption {
	return func(o *ConnectOptions) { o.onStatusChanged = callback }
}

func WithAgentChangedCallback(callback func(agentName string)) ConnectOption {
	return func(o *ConnectOptions) { o.onAgentChanged = callback }
}

// WithTranscriptUpdatedCallback registers a signal-only callback; consumers
// pull the current state through Transcript.
func WithTranscriptUpdatedCallback(callback func()) ConnectOption {
	return func(o *ConnectOptions) { o.onTranscriptUpdated = callback }
}

func WithPatientInfoUpdatedCallback(callback func(info patientinfo.Info)) ConnectOption {
	return func(o *ConnectOptions) { o.onPatientInfoUpdated = callback }
}

func WithOutputAudioActiveChangedCallback(callback func(active bool)) ConnectOption {
	return func(o *ConnectOptions) { o.onOutputAudioActiveChanged = callback }
}
