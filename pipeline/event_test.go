package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		id      string
		textual bool
		want    Kind
	}{
		{"primespeech-audio", false, KindAudio},
		{"tts/audio", false, KindAudio},
		{"qwen-text", true, KindText},
		{"paraformer-transcription", true, KindTranscription},
		{"tts-segment_complete", true, KindSegmentComplete},
		{"node-log", true, KindLog},
		{"vad-speech_started", true, KindSpeechStarted},
		{"vad-speech_stopped", true, KindSpeechStopped},
		{"vad-question_ended", true, KindSpeechStopped},
		// Precedence: the transcription marker wins over the generic text fallback.
		{"whisper-transcription-final", true, KindTranscription},
		// A binary payload with an unmarked id is unclassifiable.
		{"mystery-output", false, KindUnknown},
		// An unmarked id with a text payload lands on the generic text channel.
		{"mystery-output", true, KindText},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.id, tt.textual), "id=%s textual=%v", tt.id, tt.textual)
	}
}

func TestNewEventTextPayload(t *testing.T) {
	ev := NewEvent("qwen-text", nil, "hello")

	assert.Equal(t, KindText, ev.Kind)
	assert.True(t, ev.IsText())
	assert.Equal(t, "hello", ev.Text)
	assert.NotNil(t, ev.Metadata)
}

func TestNewEventSamplePayload(t *testing.T) {
	ev := NewEvent("tts-audio", Metadata{MetaSampleRate: 32000}, []float32{0.1, 0.2})

	assert.Equal(t, KindAudio, ev.Kind)
	assert.False(t, ev.IsText())
	assert.Equal(t, []float32{0.1, 0.2}, ev.Samples)
	assert.Equal(t, 32000, ev.SampleRate(24000))
}

func TestNewEventUnwrapsOneNestingLevel(t *testing.T) {
	ev := NewEvent("tts-audio", nil, [][]float32{{0.5, -0.5}, {0.9}})

	require.Equal(t, []float32{0.5, -0.5}, ev.Samples)
}

func TestNewEventEmptyNestedPayload(t *testing.T) {
	ev := NewEvent("tts-audio", nil, [][]float32{})
	assert.Empty(t, ev.Samples)
}

func TestSegmentsRemainingDefaultsHigh(t *testing.T) {
	ev := NewEvent("tts-audio", nil, []float32{0})
	// A missing countdown must never look like the final segment.
	assert.Equal(t, 999, ev.SegmentsRemaining())

	ev = NewEvent("tts-audio", Metadata{MetaSegmentsRemaining: 0}, []float32{0})
	assert.Zero(t, ev.SegmentsRemaining())
}

func TestMetadataIntToleratesNumericTypes(t *testing.T) {
	m := Metadata{
		"a": 7,
		"b": int64(8),
		"c": float64(9),
		"d": uint32(10),
		"e": "not a number",
	}

	assert.Equal(t, 7, m.Int("a", -1))
	assert.Equal(t, 8, m.Int("b", -1))
	assert.Equal(t, 9, m.Int("c", -1))
	assert.Equal(t, 10, m.Int("d", -1))
	assert.Equal(t, -1, m.Int("e", -1))
	assert.Equal(t, -1, m.Int("missing", -1))
}

func TestMetadataString(t *testing.T) {
	m := Metadata{"stage": "synthesis", "n": 3}
	assert.Equal(t, "synthesis", m.String("stage", "unknown"))
	assert.Equal(t, "unknown", m.String("n", "unknown"))
	assert.Equal(t, "unknown", m.String("missing", "unknown"))
}

func TestSharedConnSendAfterClose(t *testing.T) {
	conn := NewSharedConn(func(output string, meta Metadata, payload any) error {
		return nil
	}, 4)

	require.NoError(t, conn.Send(context.Background(), OutputText, nil, "hi"))

	conn.Close()
	assert.ErrorIs(t, conn.Send(context.Background(), OutputText, nil, "hi"), ErrClosed)

	// The closed channel is the end-of-stream signal.
	_, open := <-conn.Events()
	assert.False(t, open)
}

func TestSharedConnSendHonorsContext(t *testing.T) {
	conn := NewSharedConn(func(output string, meta Metadata, payload any) error {
		t.Fatal("send must not be called with a canceled context")
		return nil
	}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, conn.Send(ctx, OutputAudio, nil, []float32{0}))
}

func TestSharedConnPublishDelivers(t *testing.T) {
	conn := NewSharedConn(func(string, Metadata, any) error { return nil }, 1)
	conn.Publish(NewEvent("qwen-text", nil, "hello"))

	ev := <-conn.Events()
	assert.Equal(t, "hello", ev.Text)
}

func TestSharedConnCloseIdempotent(t *testing.T) {
	conn := NewSharedConn(func(string, Metadata, any) error { return nil }, 1)
	conn.Close()
	conn.Close()
}

func TestAttachWithoutTransport(t *testing.T) {
	RegisterTransport(nil)
	_, err := Attach(context.Background(), "voicegate")
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestAttachUsesRegisteredTransport(t *testing.T) {
	want := NewSharedConn(func(string, Metadata, any) error { return nil }, 1)
	RegisterTransport(func(ctx context.Context, nodeName string) (*SharedConn, error) {
		assert.Equal(t, "voicegate", nodeName)
		return want, nil
	})
	defer RegisterTransport(nil)

	got, err := Attach(context.Background(), "voicegate")
	require.NoError(t, err)
	assert.Same(t, want, got)
}
