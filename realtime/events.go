package realtime

import "encoding/json"

// Server event types consumed from the Realtime API.
const (
	EventSessionCreated          = "session.created"
	EventSessionUpdated          = "session.updated"
	EventResponseDone            = "response.done"
	EventResponseAudioDelta      = "response.audio.delta"
	EventResponseTranscriptDelta = "response.audio_transcript.delta"
	EventSpeechStarted           = "input_audio_buffer.speech_started"
	EventSpeechStopped           = "input_audio_buffer.speech_stopped"
	EventError                   = "error"
)

// ClientEvent is an outbound event. The required "type" field discriminates;
// Send stamps an "event_id" if one is not already present.
type ClientEvent map[string]any

// Type returns the event's type discriminator, or "" if unset.
func (e ClientEvent) Type() string {
	t, _ := e["type"].(string)
	return t
}

// EventID returns the event's identifier, or "" if not yet stamped.
func (e ClientEvent) EventID() string {
	id, _ := e["event_id"].(string)
	return id
}

// ─────────────────────────────────────────────────────────────────────────────
// Outbound event builders
// ─────────────────────────────────────────────────────────────────────────────

// SessionUpdate creates a session.update event. The session payload is
// passed through to the API opaquely.
func SessionUpdate(session map[string]any) ClientEvent {
	return ClientEvent{
		"type":    "session.update",
		"session": session,
	}
}

// InputAudioBufferAppend creates an input_audio_buffer.append event carrying
// base64-armored PCM16 audio.
func InputAudioBufferAppend(audioBase64 string) ClientEvent {
	return ClientEvent{
		"type":  "input_audio_buffer.append",
		"audio": audioBase64,
	}
}

// InputAudioBufferCommit creates an input_audio_buffer.commit event.
func InputAudioBufferCommit() ClientEvent {
	return ClientEvent{"type": "input_audio_buffer.commit"}
}

// InputAudioBufferClear creates an input_audio_buffer.clear event.
func InputAudioBufferClear() ClientEvent {
	return ClientEvent{"type": "input_audio_buffer.clear"}
}

// ConversationItemText creates a conversation.item.create event carrying a
// text message item.
func ConversationItemText(role, text string) ClientEvent {
	return ClientEvent{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": role,
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}
}

// ConversationItemFunctionOutput creates a conversation.item.create event
// answering a function call with its output.
func ConversationItemFunctionOutput(callID, output string) ClientEvent {
	return ClientEvent{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}
}

// ResponseCreate creates a response.create event. A nil payload requests a
// response with session defaults.
func ResponseCreate(response map[string]any) ClientEvent {
	e := ClientEvent{"type": "response.create"}
	if response != nil {
		e["response"] = response
	}
	return e
}

// ResponseCancel creates a response.cancel event, interrupting the
// in-progress response.
func ResponseCancel() ClientEvent {
	return ClientEvent{"type": "response.cancel"}
}

// ─────────────────────────────────────────────────────────────────────────────
// Inbound events
// ─────────────────────────────────────────────────────────────────────────────

// ServerEvent is a discriminated union for inbound Realtime API events.
// Check the concrete type via type switch.
type ServerEvent interface {
	eventType() string
}

// SessionCreatedEvent confirms the session after the handshake.
type SessionCreatedEvent struct {
	EventID string          `json:"event_id"`
	Session json.RawMessage `json:"session"`
}

func (SessionCreatedEvent) eventType() string { return EventSessionCreated }

// SessionUpdatedEvent acknowledges a session.update.
type SessionUpdatedEvent struct {
	EventID string          `json:"event_id"`
	Session json.RawMessage `json:"session"`
}

func (SessionUpdatedEvent) eventType() string { return EventSessionUpdated }

// AudioDeltaEvent carries a base64 PCM16 chunk of synthesized audio.
type AudioDeltaEvent struct {
	EventID      string `json:"event_id"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

func (AudioDeltaEvent) eventType() string { return EventResponseAudioDelta }

// TranscriptDeltaEvent carries a text fragment of the assistant's audio
// transcript.
type TranscriptDeltaEvent struct {
	EventID    string `json:"event_id"`
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

func (TranscriptDeltaEvent) eventType() string { return EventResponseTranscriptDelta }

// ContentPart is one piece of an output item's content.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// OutputItem is one item in a completed response. Items of type
// "function_call" require local execution and a function_call_output reply.
type OutputItem struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Role      string        `json:"role,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
}

// ResponseDoneEvent signals a completed response, possibly embedding
// function calls.
type ResponseDoneEvent struct {
	EventID  string `json:"event_id"`
	Response struct {
		ID     string       `json:"id"`
		Status string       `json:"status"`
		Output []OutputItem `json:"output"`
	} `json:"response"`
}

func (ResponseDoneEvent) eventType() string { return EventResponseDone }

// FunctionCalls returns the function_call output items of the response.
func (e ResponseDoneEvent) FunctionCalls() []OutputItem {
	var calls []OutputItem
	for _, item := range e.Response.Output {
		if item.Type == "function_call" {
			calls = append(calls, item)
		}
	}
	return calls
}

// SpeechStartedEvent is emitted when server VAD detects speech.
type SpeechStartedEvent struct {
	EventID      string `json:"event_id"`
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

func (SpeechStartedEvent) eventType() string { return EventSpeechStarted }

// SpeechStoppedEvent is emitted when server VAD detects silence.
type SpeechStoppedEvent struct {
	EventID    string `json:"event_id"`
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

func (SpeechStoppedEvent) eventType() string { return EventSpeechStopped }

// APIError is the error payload of an error event.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// ErrorEvent is emitted when the API reports an error.
type ErrorEvent struct {
	EventID string   `json:"event_id"`
	Error   APIError `json:"error"`
}

func (ErrorEvent) eventType() string { return EventError }

// UnknownEvent holds events this client does not interpret. The raw payload
// is retained for logging.
type UnknownEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Raw     json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

// ParseEvent unmarshals an inbound frame into the appropriate ServerEvent.
func ParseEvent(data []byte) (ServerEvent, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}

	switch header.Type {
	case EventSessionCreated:
		var e SessionCreatedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventSessionUpdated:
		var e SessionUpdatedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventResponseAudioDelta:
		var e AudioDeltaEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventResponseTranscriptDelta:
		var e TranscriptDeltaEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventResponseDone:
		var e ResponseDoneEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventSpeechStarted:
		var e SpeechStartedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventSpeechStopped:
		var e SpeechStoppedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventError:
		var e ErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		var e UnknownEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		e.Raw = data
		return e, nil
	}
}
