package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/relaymesh/voicegate/messages"
)

// GreetingDebounce is the window within which a repeated greeting
// instruction is suppressed instead of forwarded to the pipeline.
const GreetingDebounce = 3000 * time.Millisecond

// Lifecycle is the per-session response state machine: Idle until the first
// delta the loop wants to forward, Active while deltas stream, and back to
// Idle once the segment countdown reaches zero. At most one response is open
// at a time.
type Lifecycle struct {
	active      bool
	createdSent bool
	responseID  string
	itemID      string
}

// Active reports whether a response is currently open.
func (l *Lifecycle) Active() bool {
	return l.active
}

// IDs returns the ids of the open response. Only meaningful while Active.
func (l *Lifecycle) IDs() (responseID, itemID string) {
	return l.responseID, l.itemID
}

// EnsureOpen opens a response with fresh ids if none is active, returning
// the response.created message that must reach the client before the first
// delta. It returns nil when a response is already open.
func (l *Lifecycle) EnsureOpen() *messages.ResponseCreated {
	if l.active {
		return nil
	}
	l.responseID = "resp_" + uuid.NewString()
	l.itemID = "item_" + uuid.NewString()
	l.active = true
	l.createdSent = true
	return messages.NewResponseCreated(l.responseID)
}

// Complete closes the open response, returning the response.audio.done and
// response.done messages in the order they must be written. It returns nils
// when no response is open.
func (l *Lifecycle) Complete() (*messages.ResponseAudioDone, *messages.ResponseDone) {
	if !l.active {
		return nil, nil
	}
	audioDone := messages.NewResponseAudioDone(l.responseID, l.itemID)
	done := messages.NewResponseDone(l.responseID)
	l.active = false
	l.createdSent = false
	l.responseID = ""
	l.itemID = ""
	return audioDone, done
}

// greetingCache deduplicates greeting instructions forwarded to the
// pipeline. Clients tend to re-send the greeting on reconnect races; a
// repeat of the same text inside the debounce window is dropped.
type greetingCache struct {
	text string
	at   time.Time
	now  func() time.Time
}

func newGreetingCache() greetingCache {
	return greetingCache{now: time.Now}
}

// IsDuplicate reports whether text matches the last forwarded greeting
// within the debounce window.
func (g *greetingCache) IsDuplicate(text string) bool {
	return !g.at.IsZero() && g.text == text && g.now().Sub(g.at) < GreetingDebounce
}

// Remember records a forwarded greeting.
func (g *greetingCache) Remember(text string) {
	g.text = text
	g.at = g.now()
}
