package pipeline

import (
	"context"
	"errors"
)

// ErrNoTransport is returned by Attach when no transport factory has been
// registered in this binary.
var ErrNoTransport = errors.New("no pipeline transport registered")

// Transport opens the dataflow connection for a named node. Concrete
// transports live outside the gateway core and register themselves at init
// time; the core never links against a specific dataflow runtime.
type Transport func(ctx context.Context, nodeName string) (*SharedConn, error)

var transport Transport

// RegisterTransport installs the transport factory used by Attach. Last
// registration wins; expected to be called once from an init function.
func RegisterTransport(t Transport) {
	transport = t
}

// Attach opens the shared pipeline connection for the named dataflow node.
func Attach(ctx context.Context, nodeName string) (*SharedConn, error) {
	if transport == nil {
		return nil, ErrNoTransport
	}
	return transport(ctx, nodeName)
}
