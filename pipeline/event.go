package pipeline

import "strings"

// Metadata keys observed on pipeline events.
const (
	MetaSampleRate        = "sample_rate"
	MetaSegmentsRemaining = "segments_remaining"
	MetaError             = "error"
	MetaErrorStage        = "error_stage"
	MetaAudioStartMS      = "audio_start_ms"
	MetaAudioEndMS        = "audio_end_ms"
)

// Kind is the closed classification of a pipeline event, derived from its
// logical id at the boundary so dispatch never matches strings itself.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindText
	KindTranscription
	KindSegmentComplete
	KindLog
	KindSpeechStarted
	KindSpeechStopped
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindText:
		return "text"
	case KindTranscription:
		return "transcription"
	case KindSegmentComplete:
		return "segment_complete"
	case KindLog:
		return "log"
	case KindSpeechStarted:
		return "speech_started"
	case KindSpeechStopped:
		return "speech_stopped"
	default:
		return "unknown"
	}
}

// Classify maps a logical event id to its Kind. textPayload tells whether
// the event carries a UTF-8 payload: ids with no recognized marker become
// KindText when textual (the pipeline's generic text channel) and
// KindUnknown otherwise.
func Classify(id string, textPayload bool) Kind {
	switch {
	case strings.Contains(id, "segment_complete"):
		return KindSegmentComplete
	case strings.Contains(id, "log"):
		return KindLog
	case strings.Contains(id, "transcription"):
		return KindTranscription
	case strings.Contains(id, "speech_started"):
		return KindSpeechStarted
	case strings.Contains(id, "speech_stopped"), strings.Contains(id, "question_ended"):
		return KindSpeechStopped
	case strings.Contains(id, "audio"):
		return KindAudio
	case textPayload:
		return KindText
	default:
		return KindUnknown
	}
}

// Metadata is the named-parameter map attached to pipeline events and sends.
type Metadata map[string]any

// Int reads an integer parameter, tolerating the numeric types different
// transports decode into.
func (m Metadata) Int(key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint32:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return def
	}
}

// String reads a string parameter.
func (m Metadata) String(key, def string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return def
}

// Event is one message received from the pipeline: a logical id, its
// derived Kind, metadata, and either a UTF-8 string or a float sample
// payload.
type Event struct {
	ID       string
	Kind     Kind
	Metadata Metadata
	Text     string
	Samples  []float32

	textual bool
}

// IsText reports whether the event carries a UTF-8 payload.
func (e Event) IsText() bool {
	return e.textual
}

// NewEvent builds an Event from a raw payload. Sample payloads arriving
// nested one list deep are unwrapped exactly one level, matching how the
// dataflow transport wraps single arrays.
func NewEvent(id string, meta Metadata, payload any) Event {
	ev := Event{ID: id, Metadata: meta}
	if ev.Metadata == nil {
		ev.Metadata = Metadata{}
	}
	switch v := payload.(type) {
	case string:
		ev.Text = v
		ev.textual = true
	case []float32:
		ev.Samples = v
	case [][]float32:
		if len(v) > 0 {
			ev.Samples = v[0]
		}
	}
	ev.Kind = Classify(id, ev.textual)
	return ev
}

// SegmentsRemaining reads the TTS segment countdown, defaulting high so a
// missing parameter never looks like the final segment.
func (e Event) SegmentsRemaining() int {
	return e.Metadata.Int(MetaSegmentsRemaining, 999)
}

// SampleRate reads the source sample rate of an audio event.
func (e Event) SampleRate(def int) int {
	return e.Metadata.Int(MetaSampleRate, def)
}
