package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Client message type tags
const (
	TypeSessionUpdate            = "session.update"
	TypeInputAudioBufferAppend   = "input_audio_buffer.append"
	TypeInputAudioBufferCommit   = "input_audio_buffer.commit"
	TypeResponseCreate           = "response.create"
	TypeConversationItemCreate   = "conversation.item.create"
	TypeConversationItemTruncate = "conversation.item.truncate"
)

// ErrNotSessionUpdate is returned by DecodeHandshake when the first frame
// decodes to anything other than a session.update message.
var ErrNotSessionUpdate = errors.New("handshake message is not session.update")

// ClientMessage is one decoded client frame. The concrete types below form a
// closed set; anything with an unrecognized type tag decodes to Unknown.
type ClientMessage interface {
	clientMessage()
}

// SessionUpdate configures the session. It is also the mandatory handshake.
type SessionUpdate struct {
	Session SessionConfig `json:"session"`
}

// InputAudioBufferAppend carries a base64-encoded PCM16 microphone chunk.
type InputAudioBufferAppend struct {
	Audio string `json:"audio"`
}

// InputAudioBufferCommit marks the end of an input audio burst. The gateway
// acknowledges it but keeps streaming; it never forces a flush.
type InputAudioBufferCommit struct{}

// ResponseCreate asks the gateway to open a response, optionally carrying
// greeting instructions to forward to the pipeline.
type ResponseCreate struct {
	Response ResponseConfig `json:"response"`
}

// ConversationItemCreate inserts an item into the conversation.
type ConversationItemCreate struct {
	Item ConversationItem `json:"item"`
}

// ConversationItemTruncate truncates previously sent assistant audio.
type ConversationItemTruncate struct {
	ItemID       string `json:"item_id"`
	ContentIndex uint32 `json:"content_index"`
	AudioEndMS   uint32 `json:"audio_end_ms"`
	EventID      string `json:"event_id,omitempty"`
}

// Unknown is the catch-all for unrecognized client message types. It is
// never a decode error; new client features must not break the connection.
type Unknown struct {
	Type string
	Raw  []byte
}

func (SessionUpdate) clientMessage()            {}
func (InputAudioBufferAppend) clientMessage()   {}
func (InputAudioBufferCommit) clientMessage()   {}
func (ResponseCreate) clientMessage()           {}
func (ConversationItemCreate) clientMessage()   {}
func (ConversationItemTruncate) clientMessage() {}
func (Unknown) clientMessage()                  {}

// SessionConfig is the client-supplied session configuration.
type SessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions"`
	Voice                   string               `json:"voice"`
	Model                   string               `json:"model"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetectionConfig `json:"turn_detection,omitempty"`
	Tools                   []json.RawMessage    `json:"tools"`
	ToolChoice              string               `json:"tool_choice"`
	Temperature             float32              `json:"temperature"`
	MaxResponseOutputTokens *uint32              `json:"max_response_output_tokens,omitempty"`
}

// TranscriptionModel returns the requested transcription model, defaulting
// to "whisper" when the client did not ask for one.
func (c SessionConfig) TranscriptionModel() string {
	if c.InputAudioTranscription != nil && c.InputAudioTranscription.Model != "" {
		return c.InputAudioTranscription.Model
	}
	return "whisper"
}

// TranscriptionConfig names the transcription model to run on input audio.
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetectionConfig tunes server-side voice activity detection.
type TurnDetectionConfig struct {
	Type              string  `json:"type"`
	Threshold         float32 `json:"threshold"`
	PrefixPaddingMS   uint32  `json:"prefix_padding_ms"`
	SilenceDurationMS uint32  `json:"silence_duration_ms"`
	InterruptResponse bool    `json:"interrupt_response"`
	CreateResponse    bool    `json:"create_response"`
}

// ResponseConfig is the per-response override carried by response.create.
type ResponseConfig struct {
	Modalities        []string          `json:"modalities"`
	Instructions      *string           `json:"instructions"`
	Voice             *string           `json:"voice"`
	OutputAudioFormat *string           `json:"output_audio_format"`
	Tools             []json.RawMessage `json:"tools,omitempty"`
	ToolChoice        *string           `json:"tool_choice"`
	Temperature       *float32          `json:"temperature"`
	MaxOutputTokens   *uint32           `json:"max_output_tokens"`
}

// ConversationItem is a conversation entry created by the client.
type ConversationItem struct {
	ID      *string       `json:"id,omitempty"`
	Type    string        `json:"type"`
	Status  *string       `json:"status,omitempty"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is one piece of item content. Type is one of "input_text",
// "input_audio", "text", "audio"; the remaining fields apply per type.
type ContentPart struct {
	Type       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	Audio      string  `json:"audio,omitempty"`
	Transcript *string `json:"transcript,omitempty"`
}

type clientEnvelope struct {
	Type string `json:"type"`
}

// DecodeClient decodes one client frame. Unrecognized type tags decode to
// Unknown; only malformed JSON or a payload that contradicts its own tag is
// an error.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env clientEnvelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid client message: %w", err)
	}

	switch env.Type {
	case TypeSessionUpdate:
		var msg SessionUpdate
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid session.update payload: %w", err)
		}
		return msg, nil
	case TypeInputAudioBufferAppend:
		var msg InputAudioBufferAppend
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid input_audio_buffer.append payload: %w", err)
		}
		return msg, nil
	case TypeInputAudioBufferCommit:
		return InputAudioBufferCommit{}, nil
	case TypeResponseCreate:
		var msg ResponseCreate
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid response.create payload: %w", err)
		}
		return msg, nil
	case TypeConversationItemCreate:
		var msg ConversationItemCreate
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid conversation.item.create payload: %w", err)
		}
		return msg, nil
	case TypeConversationItemTruncate:
		var msg ConversationItemTruncate
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid conversation.item.truncate payload: %w", err)
		}
		return msg, nil
	default:
		raw := make([]byte, len(data))
		copy(raw, data)
		return Unknown{Type: env.Type, Raw: raw}, nil
	}
}

// DecodeHandshake decodes the mandatory first frame of a session. Unlike
// DecodeClient it is strict: anything other than a well-formed
// session.update is an error.
func DecodeHandshake(data []byte) (SessionUpdate, error) {
	msg, err := DecodeClient(data)
	if err != nil {
		return SessionUpdate{}, err
	}
	update, ok := msg.(SessionUpdate)
	if !ok {
		return SessionUpdate{}, ErrNotSessionUpdate
	}
	return update, nil
}
