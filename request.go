package mediator

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind identifies a request type and selects the handler it is routed to.
type Kind string

// Request is a value that can be dispatched through a Registry.
// Kind must return the same value for every instance of a type, including
// its zero value.
type Request interface {
	Kind() Kind
}

// RequestHandler handles requests of exactly one type.
type RequestHandler[R Request] interface {
	Handle(ctx context.Context, request R)
}

// HandlerFunc adapts a plain function to RequestHandler.
type HandlerFunc[R Request] func(ctx context.Context, request R)

// Handle calls f(ctx, request).
func (f HandlerFunc[R]) Handle(ctx context.Context, request R) {
	f(ctx, request)
}

// Envelope is the wire form of a request
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes a request for a transport
func NewEnvelope(request Request) (Envelope, error) {
	if isNil(request) {
		return Envelope{}, ErrNilRequest
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	return Envelope{Kind: request.Kind(), Payload: payload}, nil
}
