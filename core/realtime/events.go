package realtime

// Client and server protocol events exchanged over the realtime session
// channel. Every event is a tagged JSON object; both directions share the
// single-envelope style so unknown fields and types pass through untouched.

// ClientEvent is an outbound protocol event.
type ClientEvent struct {
	Type    string         `json:"type"`
	Session *SessionConfig `json:"session,omitempty"`
	Item    *Item          `json:"item,omitempty"`
	ItemID  string         `json:"item_id,omitempty"`
	Audio   string         `json:"audio,omitempty"`
}

// Item is a conversation item carried in item-create events. It doubles as a
// message (role+content) and as a function call output (call id+output).
type Item struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// SessionConfig is the payload of a session.update event. TurnDetection
// deliberately lacks omitempty: push-to-talk requires an explicit null.
type SessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions"`
	Voice                   string               `json:"voice"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection"`
	Tools                   []ToolDeclaration    `json:"tools"`
}

type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetection is the server-driven voice activity policy. A nil value in
// SessionConfig means the client commits the input buffer itself.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

// ServerVAD is the voice-activity policy used whenever push-to-talk is off.
func ServerVAD() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.9,
		PrefixPaddingMS:   300,
		SilenceDurationMS: 500,
		CreateResponse:    true,
	}
}

// ToolDeclaration is handed verbatim to the remote model and must match what
// the local executor expects.
type ToolDeclaration struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema is the structured-object subset of JSON schema that tool
// parameters use.
type ParameterSchema struct {
	Type        string                     `json:"type"`
	Description string                     `json:"description,omitempty"`
	Properties  map[string]ParameterSchema `json:"properties,omitempty"`
	Items       *ParameterSchema           `json:"items,omitempty"`
	Enum        []string                   `json:"enum,omitempty"`
	Required    []string                   `json:"required,omitempty"`
}

func SessionUpdate(config SessionConfig) ClientEvent {
	return ClientEvent{Type: "session.update", Session: &config}
}

func CreateUserMessage(id, text string) ClientEvent {
	return ClientEvent{Type: "conversation.item.create", Item: &Item{
		ID:      id,
		Type:    "message",
		Role:    "user",
		Content: []ContentPart{{Type: "input_text", Text: text}},
	}}
}

func CreateFunctionCallOutput(callID, output string) ClientEvent {
	return ClientEvent{Type: "conversation.item.create", Item: &Item{
		Type:   "function_call_output",
		CallID: callID,
		Output: output,
	}}
}

func DeleteItem(itemID string) ClientEvent {
	return ClientEvent{Type: "conversation.item.delete", ItemID: itemID}
}

func CreateResponse() ClientEvent {
	return ClientEvent{Type: "response.create"}
}

func CancelResponse() ClientEvent {
	return ClientEvent{Type: "response.cancel"}
}

func ClearInputAudioBuffer() ClientEvent {
	return ClientEvent{Type: "input_audio_buffer.clear"}
}

func CommitInputAudioBuffer() ClientEvent {
	return ClientEvent{Type: "input_audio_buffer.commit"}
}

func AppendInputAudio(base64Audio string) ClientEvent {
	return ClientEvent{Type: "input_audio_buffer.append", Audio: base64Audio}
}

func ClearOutputAudioBuffer() ClientEvent {
	return ClientEvent{Type: "output_audio_buffer.clear"}
}

// Inbound event type names the dispatcher reacts to. Anything else is ignored.
const (
	TypeSessionCreated         = "session.created"
	TypeOutputAudioStarted     = "output_audio_buffer.started"
	TypeOutputAudioStopped     = "output_audio_buffer.stopped"
	TypeItemCreated            = "conversation.item.created"
	TypeInputTranscriptionDone = "conversation.item.input_audio_transcription.completed"
	TypeAudioTranscriptDelta   = "response.audio_transcript.delta"
	TypeAudioDelta             = "response.audio.delta"
	TypeResponseDone           = "response.done"
	TypeOutputItemDone         = "response.output_item.done"
)

// ServerEvent is the inbound protocol event envelope, the union of the fields
// the dispatcher consumes.
type ServerEvent struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id,omitempty"`
	Session    *SessionInfo    `json:"session,omitempty"`
	Item       *ServerItem     `json:"item,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Response   *ServerResponse `json:"response,omitempty"`
}

type SessionInfo struct {
	ID string `json:"id"`
}

// ServerItem is a conversation item as reported by the remote side; function
// call entries carry Name/CallID/Arguments, messages carry Role/Content.
type ServerItem struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type,omitempty"`
	Role      string        `json:"role,omitempty"`
	Status    string        `json:"status,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
}

// Text returns the first content part's text or transcript, whichever is set.
func (i *ServerItem) Text() string {
	if i == nil || len(i.Content) == 0 {
		return ""
	}
	if i.Content[0].Text != "" {
		return i.Content[0].Text
	}
	return i.Content[0].Transcript
}

type ServerResponse struct {
	Output []ServerItem `json:"output,omitempty"`
}
