package messages

import (
	"github.com/bytedance/sonic"
)

// Server message type tags
const (
	TypeError                         = "error"
	TypeSessionCreated                = "session.created"
	TypeSessionUpdated                = "session.updated"
	TypeResponseCreated               = "response.created"
	TypeConversationItemCreated       = "conversation.item.created"
	TypeConversationItemTruncated     = "conversation.item.truncated"
	TypeResponseAudioDelta            = "response.audio.delta"
	TypeResponseAudioDone             = "response.audio.done"
	TypeResponseTextDelta             = "response.text.delta"
	TypeResponseAudioTranscriptDelta  = "response.audio_transcript.delta"
	TypeResponseDone                  = "response.done"
	TypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	TypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"
)

// Error codes surfaced to clients
const (
	ErrCodeDataflowNotConnected = "dataflow_not_connected"
	ErrCodeSessionFailed        = "session_create_failed"
	ErrTypeServerError          = "server_error"
)

// Encode serializes a server message to a JSON text frame payload. Output
// types are fully specified, so encoding never fails for messages built by
// the constructors in this package.
func Encode(msg any) ([]byte, error) {
	return sonic.Marshal(msg)
}

// ErrorDetails describes a server-side failure to the client.
type ErrorDetails struct {
	Code    *string `json:"code"`
	Message string  `json:"message"`
	Param   *string `json:"param"`
	Type    *string `json:"type"`
}

// ErrorMessage is a structured error event.
type ErrorMessage struct {
	Type  string       `json:"type"`
	Error ErrorDetails `json:"error"`
}

// SessionEcho is the session object echoed back by session.created and
// session.updated.
type SessionEcho struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	SessionConfig
}

// SessionCreated acknowledges session establishment.
type SessionCreated struct {
	Type    string      `json:"type"`
	Session SessionEcho `json:"session"`
}

// SessionUpdated confirms a processed session.update.
type SessionUpdated struct {
	Type    string      `json:"type"`
	Session SessionEcho `json:"session"`
}

// Response is the response object carried by response.created and
// response.done.
type Response struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	StatusDetails *string  `json:"status_details"`
	Output        []string `json:"output"`
	Usage         *Usage   `json:"usage,omitempty"`
}

// Usage reports token accounting for a completed response. The pipeline
// does not meter tokens, so every field is zero.
type Usage struct {
	TotalTokens        uint32       `json:"total_tokens"`
	InputTokens        uint32       `json:"input_tokens"`
	OutputTokens       uint32       `json:"output_tokens"`
	InputTokenDetails  TokenDetails `json:"input_token_details"`
	OutputTokenDetails TokenDetails `json:"output_token_details"`
}

// TokenDetails breaks a token count down by kind.
type TokenDetails struct {
	CachedTokens uint32 `json:"cached_tokens"`
	TextTokens   uint32 `json:"text_tokens"`
	AudioTokens  uint32 `json:"audio_tokens"`
}

// ResponseCreated opens a response lifecycle.
type ResponseCreated struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

// ResponseDone closes a response lifecycle.
type ResponseDone struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

// ResponseAudioDelta streams one base64 PCM16 audio chunk of a response.
type ResponseAudioDelta struct {
	Type         string `json:"type"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  uint32 `json:"output_index"`
	ContentIndex uint32 `json:"content_index"`
	Delta        string `json:"delta"`
}

// ResponseAudioDone marks the end of a response's audio stream.
type ResponseAudioDone struct {
	Type         string `json:"type"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  uint32 `json:"output_index"`
	ContentIndex uint32 `json:"content_index"`
}

// ResponseTextDelta streams one text chunk of a response.
type ResponseTextDelta struct {
	Type         string `json:"type"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  uint32 `json:"output_index"`
	ContentIndex uint32 `json:"content_index"`
	Delta        string `json:"delta"`
}

// ResponseAudioTranscriptDelta streams one chunk of the input transcription.
type ResponseAudioTranscriptDelta struct {
	Type         string `json:"type"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  uint32 `json:"output_index"`
	ContentIndex uint32 `json:"content_index"`
	Delta        string `json:"delta"`
}

// ConversationItemCreated acknowledges conversation.item.create.
type ConversationItemCreated struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

// TruncatedItem echoes the coordinates of a truncated item.
type TruncatedItem struct {
	ID           string `json:"id"`
	ContentIndex uint32 `json:"content_index"`
	AudioEndMS   uint32 `json:"audio_end_ms"`
}

// ConversationItemTruncated acknowledges conversation.item.truncate.
type ConversationItemTruncated struct {
	Type string        `json:"type"`
	Item TruncatedItem `json:"item"`
}

// InputAudioBufferSpeechStarted signals detected speech onset.
type InputAudioBufferSpeechStarted struct {
	Type         string `json:"type"`
	AudioStartMS uint32 `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

// InputAudioBufferSpeechStopped signals detected speech end.
type InputAudioBufferSpeechStopped struct {
	Type       string `json:"type"`
	AudioEndMS uint32 `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// NewErrorMessage creates a structured error event.
func NewErrorMessage(code, message, errType string) *ErrorMessage {
	msg := &ErrorMessage{
		Type: TypeError,
		Error: ErrorDetails{
			Message: message,
		},
	}
	if code != "" {
		msg.Error.Code = &code
	}
	if errType != "" {
		msg.Error.Type = &errType
	}
	return msg
}

func newSessionEcho(sessionID string, cfg SessionConfig) SessionEcho {
	return SessionEcho{
		ID:            sessionID,
		Object:        "realtime.session",
		SessionConfig: cfg,
	}
}

// NewSessionCreated creates the session.created acknowledgment, echoing the
// accepted configuration.
func NewSessionCreated(sessionID string, cfg SessionConfig) *SessionCreated {
	return &SessionCreated{Type: TypeSessionCreated, Session: newSessionEcho(sessionID, cfg)}
}

// NewSessionUpdated creates the session.updated acknowledgment.
func NewSessionUpdated(sessionID string, cfg SessionConfig) *SessionUpdated {
	return &SessionUpdated{Type: TypeSessionUpdated, Session: newSessionEcho(sessionID, cfg)}
}

// NewResponseCreated opens a response with the given id.
func NewResponseCreated(responseID string) *ResponseCreated {
	return &ResponseCreated{
		Type: TypeResponseCreated,
		Response: Response{
			ID:     responseID,
			Status: "in_progress",
			Output: []string{},
		},
	}
}

// NewResponseDone closes the response with the given id.
func NewResponseDone(responseID string) *ResponseDone {
	return &ResponseDone{
		Type: TypeResponseDone,
		Response: Response{
			ID:     responseID,
			Status: "completed",
			Output: []string{},
			Usage:  &Usage{},
		},
	}
}

// NewResponseAudioDelta creates an audio delta carrying base64 PCM16 data.
func NewResponseAudioDelta(responseID, itemID, audioB64 string) *ResponseAudioDelta {
	return &ResponseAudioDelta{
		Type:       TypeResponseAudioDelta,
		ResponseID: responseID,
		ItemID:     itemID,
		Delta:      audioB64,
	}
}

// NewResponseAudioDone marks the response's audio stream complete.
func NewResponseAudioDone(responseID, itemID string) *ResponseAudioDone {
	return &ResponseAudioDone{
		Type:       TypeResponseAudioDone,
		ResponseID: responseID,
		ItemID:     itemID,
	}
}

// NewResponseTextDelta creates a text delta.
func NewResponseTextDelta(responseID, itemID, delta string) *ResponseTextDelta {
	return &ResponseTextDelta{
		Type:       TypeResponseTextDelta,
		ResponseID: responseID,
		ItemID:     itemID,
		Delta:      delta,
	}
}

// NewResponseAudioTranscriptDelta creates a transcription delta.
func NewResponseAudioTranscriptDelta(responseID, itemID, delta string) *ResponseAudioTranscriptDelta {
	return &ResponseAudioTranscriptDelta{
		Type:       TypeResponseAudioTranscriptDelta,
		ResponseID: responseID,
		ItemID:     itemID,
		Delta:      delta,
	}
}

// NewConversationItemCreated echoes a created conversation item.
func NewConversationItemCreated(item ConversationItem) *ConversationItemCreated {
	return &ConversationItemCreated{Type: TypeConversationItemCreated, Item: item}
}

// NewConversationItemTruncated echoes a processed truncation.
func NewConversationItemTruncated(itemID string, contentIndex, audioEndMS uint32) *ConversationItemTruncated {
	return &ConversationItemTruncated{
		Type: TypeConversationItemTruncated,
		Item: TruncatedItem{ID: itemID, ContentIndex: contentIndex, AudioEndMS: audioEndMS},
	}
}

// NewSpeechStarted signals speech onset at the given input offset.
func NewSpeechStarted(audioStartMS uint32, itemID string) *InputAudioBufferSpeechStarted {
	return &InputAudioBufferSpeechStarted{
		Type:         TypeInputAudioBufferSpeechStarted,
		AudioStartMS: audioStartMS,
		ItemID:       itemID,
	}
}

// NewSpeechStopped signals speech end at the given input offset.
func NewSpeechStopped(audioEndMS uint32, itemID string) *InputAudioBufferSpeechStopped {
	return &InputAudioBufferSpeechStopped{
		Type:       TypeInputAudioBufferSpeechStopped,
		AudioEndMS: audioEndMS,
		ItemID:     itemID,
	}
}
