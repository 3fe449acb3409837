package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaymesh/voicegate/audio"
	"github.com/relaymesh/voicegate/messages"
	"github.com/relaymesh/voicegate/pipeline"
)

const (
	readLimit    = 512 * 1024 // 512KB max message
	writeTimeout = 10 * time.Second
)

// ErrPipelineUnavailable means no pipeline connection was attached when the
// session started. Fatal to the session, not to the server.
var ErrPipelineUnavailable = errors.New("pipeline connection unavailable")

// clientFrame is one data frame delivered by the read pump.
type clientFrame struct {
	messageType int
	data        []byte
}

// Session drives a single client connection from handshake to close. All
// protocol state below is owned by the Run loop goroutine: the loop services
// exactly one frame or one pipeline event per iteration, so no locking is
// needed around it.
type Session struct {
	ID         string
	conn       *websocket.Conn
	pipe       pipeline.Adapter
	supervisor pipeline.Supervisor

	// Loop-owned state
	Config    messages.SessionConfig
	lifecycle Lifecycle
	greeting  greetingCache
	uplink    *audio.Converter
	micBuffer *audio.ChunkBuffer

	CreatedAt time.Time

	mu           sync.RWMutex
	lastActivity time.Time
	closed       bool
	cancel       context.CancelFunc

	closeReplied atomic.Bool
	CloseChan    chan struct{}
}

// NewSession wires a session around an upgraded connection. pipe may be nil
// when the gateway runs without a pipeline attachment; such sessions fail
// fast at handshake with a structured error.
func NewSession(id string, conn *websocket.Conn, pipe pipeline.Adapter, supervisor pipeline.Supervisor) *Session {
	if supervisor == nil {
		supervisor = pipeline.NopSupervisor{}
	}
	return &Session{
		ID:           id,
		conn:         conn,
		pipe:         pipe,
		supervisor:   supervisor,
		uplink:       audio.NewUplinkConverter(),
		micBuffer:    audio.NewChunkBuffer(audio.UplinkChunkSize),
		greeting:     newGreetingCache(),
		CreatedAt:    time.Now(),
		lastActivity: time.Now(),
		CloseChan:    make(chan struct{}),
	}
}

// Run performs the handshake and then races WebSocket frames against
// pipeline events until either side ends. It always leaves the connection
// with a close frame sent.
func (s *Session) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer s.Close()

	s.conn.SetReadLimit(readLimit)
	s.conn.SetPingHandler(func(appData string) error {
		err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	s.conn.SetCloseHandler(func(code int, text string) error {
		// Echo close exactly once; the read pump exits right after.
		s.replyClose(websocket.CloseNormalClosure, "")
		return nil
	})

	if err := s.handshake(ctx); err != nil {
		s.replyClose(websocket.CloseNormalClosure, "")
		return err
	}

	frames := make(chan clientFrame)
	go s.readPump(ctx, frames)

	err := s.loop(ctx, frames)
	s.replyClose(websocket.CloseNormalClosure, "")
	log.Printf("🔌 [%s] Client disconnected", s.shortID())
	return err
}

// handshake enforces the mandatory first frame: a text frame decoding to
// session.update. Violations are fatal with the matching close code.
func (s *Session) handshake(ctx context.Context) error {
	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}
	if mt != websocket.TextMessage {
		s.replyClose(websocket.CloseProtocolError, "Protocol error")
		return errors.New("handshake: first frame is not text")
	}

	update, err := messages.DecodeHandshake(data)
	if err != nil {
		s.replyClose(websocket.CloseUnsupportedData, "Unsupported data")
		return fmt.Errorf("handshake: %w", err)
	}
	s.Config = update.Session
	log.Printf("📋 [%s] Session config - transcription: %s, model: %s",
		s.shortID(), s.Config.TranscriptionModel(), s.Config.Model)

	if err := s.supervisor.EnsureReady(ctx, s.Config); err != nil {
		log.Printf("❌ [%s] Pipeline supervisor not ready: %v", s.shortID(), err)
		_ = s.writeServer(messages.NewErrorMessage(
			messages.ErrCodeDataflowNotConnected,
			fmt.Sprintf("Pipeline not ready: %v", err),
			messages.ErrTypeServerError,
		))
		return fmt.Errorf("supervisor: %w", err)
	}

	if s.pipe == nil {
		log.Printf("❌ [%s] No pipeline connection; rejecting session", s.shortID())
		_ = s.writeServer(messages.NewErrorMessage(
			messages.ErrCodeDataflowNotConnected,
			"Server not connected to dataflow. Please restart the server with --name argument.",
			messages.ErrTypeServerError,
		))
		return ErrPipelineUnavailable
	}

	if err := s.writeServer(messages.NewSessionCreated(s.ID, s.Config)); err != nil {
		return err
	}
	if err := s.writeServer(messages.NewSessionUpdated(s.ID, s.Config)); err != nil {
		return err
	}
	log.Printf("✅ [%s] Session acknowledged", s.shortID())
	return nil
}

// readPump moves data frames from the connection into the loop's channel.
// It never dispatches anything itself; the loop stays the only mutator of
// session state. Closing the frames channel signals the client side ended.
func (s *Session) readPump(ctx context.Context, frames chan<- clientFrame) {
	defer close(frames)
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.IsClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ [%s] WebSocket read error: %v", s.shortID(), err)
			}
			return
		}
		select {
		case frames <- clientFrame{messageType: mt, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// loop races the next client frame against the next pipeline event and
// services exactly one of them per iteration. It exits when the client
// closes or the pipeline event stream ends; everything else is recoverable.
func (s *Session) loop(ctx context.Context, frames <-chan clientFrame) error {
	events := s.pipe.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fr, ok := <-frames:
			if !ok {
				return nil
			}
			s.touch()
			if err := s.handleClientFrame(ctx, fr); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				log.Printf("ℹ️  [%s] Pipeline event stream ended", s.shortID())
				return nil
			}
			s.touch()
			if err := s.handleEvent(ev); err != nil {
				return err
			}
		}
	}
}

// handleClientFrame decodes and dispatches one post-handshake client frame.
// Malformed payloads are logged and skipped; only write failures are
// returned.
func (s *Session) handleClientFrame(ctx context.Context, fr clientFrame) error {
	msg, err := messages.DecodeClient(fr.data)
	if err != nil {
		log.Printf("⚠️  [%s] Ignoring malformed client message (%d bytes): %v", s.shortID(), len(fr.data), err)
		return nil
	}

	switch m := msg.(type) {
	case messages.SessionUpdate:
		s.Config = m.Session
		return s.writeServer(messages.NewSessionUpdated(s.ID, s.Config))

	case messages.InputAudioBufferAppend:
		s.handleAudioAppend(ctx, m.Audio)
		return nil

	case messages.InputAudioBufferCommit:
		// Acknowledged but never closes anything; continuous streaming is
		// the expected mode.
		log.Printf("✅ [%s] input_audio_buffer.commit received; streaming continues", s.shortID())
		return nil

	case messages.ResponseCreate:
		s.handleResponseCreate(ctx, m.Response)
		return nil

	case messages.ConversationItemCreate:
		item := m.Item
		if item.ID == nil {
			id := "item_" + uuid.NewString()
			item.ID = &id
		}
		return s.writeServer(messages.NewConversationItemCreated(item))

	case messages.ConversationItemTruncate:
		return s.writeServer(messages.NewConversationItemTruncated(m.ItemID, m.ContentIndex, m.AudioEndMS))

	case messages.Unknown:
		log.Printf("⚠️  [%s] Ignoring unsupported client message type %q", s.shortID(), m.Type)
		return nil

	default:
		return nil
	}
}

// handleAudioAppend decodes one microphone chunk, accumulates it, and
// forwards every full converter chunk to the pipeline at 16 kHz. All
// failures here are recoverable: the buffer is only mutated after a
// successful decode.
func (s *Session) handleAudioAppend(ctx context.Context, audioB64 string) {
	audioB64 = strings.TrimSpace(audioB64)
	if audioB64 == "" {
		log.Printf("⚠️  [%s] Empty audio buffer received, skipping", s.shortID())
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		log.Printf("⚠️  [%s] Failed to decode base64 audio: %v", s.shortID(), err)
		return
	}

	s.micBuffer.Append(audio.PCM16ToFloat32(pcm))
	for _, chunk := range s.micBuffer.Drain() {
		resampled := s.uplink.Process(chunk)
		meta := pipeline.Metadata{pipeline.MetaSampleRate: audio.PipelineInputRate}
		if err := s.pipe.Send(ctx, pipeline.OutputAudio, meta, resampled); err != nil {
			log.Printf("❌ [%s] Failed to send audio to pipeline: %v", s.shortID(), err)
		}
	}
}

// handleResponseCreate forwards greeting instructions to the pipeline,
// suppressing duplicates inside the debounce window.
func (s *Session) handleResponseCreate(ctx context.Context, rc messages.ResponseConfig) {
	if rc.Instructions == nil || *rc.Instructions == "" {
		return
	}
	text := *rc.Instructions

	if s.greeting.IsDuplicate(text) {
		log.Printf("↩️  [%s] Ignoring duplicate greeting within %s window", s.shortID(), GreetingDebounce)
		return
	}

	log.Printf("🎯 [%s] Forwarding greeting instructions to pipeline", s.shortID())
	if err := s.pipe.Send(ctx, pipeline.OutputText, nil, text); err != nil {
		// The pipeline may not be ready yet; the session stays up.
		log.Printf("⚠️  [%s] Failed to send greeting to pipeline: %v", s.shortID(), err)
		return
	}
	s.greeting.Remember(text)
}

// handleEvent dispatches one pipeline event. Unrecognized kinds are
// ignored; only write failures are returned.
func (s *Session) handleEvent(ev pipeline.Event) error {
	switch ev.Kind {
	case pipeline.KindLog:
		// Node logs stay server-side to avoid protocol noise.
		log.Printf("🪵 [%s] Pipeline log from %s: %s", s.shortID(), ev.ID, ev.Text)
		return nil

	case pipeline.KindSegmentComplete:
		return s.handleSegmentComplete(ev)

	case pipeline.KindTranscription:
		return s.forwardTextDelta(ev, true)

	case pipeline.KindText:
		return s.forwardTextDelta(ev, false)

	case pipeline.KindAudio:
		return s.handleAudioEvent(ev)

	case pipeline.KindSpeechStarted:
		ms := uint32(ev.Metadata.Int(pipeline.MetaAudioStartMS, 0))
		return s.writeServer(messages.NewSpeechStarted(ms, "item_"+uuid.NewString()))

	case pipeline.KindSpeechStopped:
		ms := uint32(ev.Metadata.Int(pipeline.MetaAudioEndMS, 0))
		return s.writeServer(messages.NewSpeechStopped(ms, "item_"+uuid.NewString()))

	default:
		return nil
	}
}

// handleSegmentComplete surfaces TTS errors to the client without ending
// the session; successful completions are informational, the real
// completion signal is segments_remaining on the audio events.
func (s *Session) handleSegmentComplete(ev pipeline.Event) error {
	if ev.Text == "error" {
		errText := ev.Metadata.String(pipeline.MetaError, "unknown")
		stage := ev.Metadata.String(pipeline.MetaErrorStage, "unknown")
		log.Printf("❌ [%s] TTS error at stage %s: %s", s.shortID(), stage, errText)
		return s.writeServer(messages.NewErrorMessage(
			"tts_error",
			fmt.Sprintf("speech synthesis failed at stage %s: %s", stage, errText),
			messages.ErrTypeServerError,
		))
	}
	log.Printf("✅ [%s] TTS segment complete (%d remaining)", s.shortID(), ev.SegmentsRemaining())
	return nil
}

// forwardTextDelta routes a pipeline text event to the client, opening a
// response first if none is active.
func (s *Session) forwardTextDelta(ev pipeline.Event, transcript bool) error {
	if created := s.lifecycle.EnsureOpen(); created != nil {
		if err := s.writeServer(created); err != nil {
			return err
		}
		log.Printf("✅ [%s] Sent response.created (%s) before first delta", s.shortID(), created.Response.ID)
	}
	responseID, itemID := s.lifecycle.IDs()
	if transcript {
		return s.writeServer(messages.NewResponseAudioTranscriptDelta(responseID, itemID, ev.Text))
	}
	return s.writeServer(messages.NewResponseTextDelta(responseID, itemID, ev.Text))
}

// handleAudioEvent resamples one TTS segment to 24 kHz and streams it to
// the client. When the segment countdown hits zero, the completion events
// go on the wire immediately after the audio payload, before the loop
// re-enters its race.
func (s *Session) handleAudioEvent(ev pipeline.Event) error {
	if ev.IsText() || len(ev.Samples) == 0 {
		log.Printf("⚠️  [%s] Skipping audio event %s with no samples", s.shortID(), ev.ID)
		return nil
	}

	srcRate := ev.SampleRate(audio.DefaultTTSRate)
	converter := audio.NewDownlinkConverter(srcRate)
	resampled := converter.Process(ev.Samples)
	delta := base64.StdEncoding.EncodeToString(audio.Float32ToPCM16(resampled))

	if created := s.lifecycle.EnsureOpen(); created != nil {
		if err := s.writeServer(created); err != nil {
			return err
		}
		log.Printf("✅ [%s] Sent response.created (%s)", s.shortID(), created.Response.ID)
	}

	responseID, itemID := s.lifecycle.IDs()
	if err := s.writeServer(messages.NewResponseAudioDelta(responseID, itemID, delta)); err != nil {
		return err
	}

	if ev.SegmentsRemaining() == 0 {
		log.Printf("🎯 [%s] Last segment; sending completion events after audio", s.shortID())
		audioDone, done := s.lifecycle.Complete()
		if err := s.writeServer(audioDone); err != nil {
			return err
		}
		if err := s.writeServer(done); err != nil {
			return err
		}
	}
	return nil
}

// writeServer encodes and writes one server message as a text frame. Only
// the loop goroutine calls it, so writes never interleave.
func (s *Session) writeServer(msg any) error {
	data, err := messages.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode server message: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// replyClose sends a close frame at most once per session.
func (s *Session) replyClose(code int, reason string) {
	if !s.closeReplied.CompareAndSwap(false, true) {
		return
	}
	deadline := time.Now().Add(writeTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// Close terminates the session and releases its resources. Safe to call
// more than once and from any goroutine.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(s.CloseChan)
	s.micBuffer.Clear()
	return s.conn.Close()
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// LastActivity returns the time of the last frame or event.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) shortID() string {
	if len(s.ID) > 13 {
		return s.ID[:13]
	}
	return s.ID
}
