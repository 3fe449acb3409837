package pipeline

import (
	"context"

	"github.com/relaymesh/voicegate/messages"
)

// Supervisor prepares the companion pipeline process for a session. Process
// spawning, config templating and liveness checks all live behind this
// interface; the gateway core only ever calls EnsureReady before
// acknowledging a handshake.
type Supervisor interface {
	EnsureReady(ctx context.Context, cfg messages.SessionConfig) error
}

// NopSupervisor assumes the dataflow is already running, the normal
// arrangement when the pipeline is started separately.
type NopSupervisor struct{}

func (NopSupervisor) EnsureReady(context.Context, messages.SessionConfig) error {
	return nil
}
