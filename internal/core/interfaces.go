package core

import "context"

// Adapter is the per-provider variant of the capture engine: request
// building, transport, and stream reconstruction for one wire protocol.
// Adding a provider means adding an Adapter implementation and registering
// it; nothing above the interface changes.
type Adapter interface {
	// Name returns the provider identity ("openai", "anthropic", ...).
	Name() string

	// BuildRequest produces the wire-shaped request for one canonical
	// input. It validates every override against the descriptor, applies
	// catalog defaults for anything unset, and marshals exactly once.
	// Pure: same input and descriptor yield byte-identical payloads.
	BuildRequest(input *CanonicalInput, model *ModelDescriptor, mode Mode) (*ProviderRequest, error)

	// Send transmits the request as one blocking call and returns the
	// provider's genuine payload untouched.
	Send(ctx context.Context, req *ProviderRequest) (*CanonicalResponse, error)

	// Stream transmits the request as an event stream, reads it to
	// exhaustion, and returns either the provider's terminal payload or a
	// reconstruction shaped exactly like it. A stream that drops after at
	// least one event yields a response with Partial set, not an error.
	Stream(ctx context.Context, req *ProviderRequest, opts StreamOptions) (*CanonicalResponse, error)
}

// StreamOptions carries the per-run stream observers. Both callbacks are
// optional and are invoked from the reading goroutine in delivery order.
type StreamOptions struct {
	// OnTextDelta observes each plain output text fragment (progress
	// display).
	OnTextDelta func(delta string)
	// OnEvent observes every raw stream event (debug capture side
	// channel).
	OnEvent func(ev StreamEvent)
}

// EmitText forwards a text fragment to the observer, if any.
func (o StreamOptions) EmitText(delta string) {
	if o.OnTextDelta != nil && delta != "" {
		o.OnTextDelta(delta)
	}
}

// EmitEvent forwards a raw event to the observer, if any.
func (o StreamOptions) EmitEvent(ev StreamEvent) {
	if o.OnEvent != nil {
		o.OnEvent(ev)
	}
}
