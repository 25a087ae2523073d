package mediator

import "errors"

var (
	ErrNilRequest            = errors.New("nil request")
	ErrNilFactory            = errors.New("nil handler factory")
	ErrInvalidRequestType    = errors.New("invalid request type")
	ErrUnsupportedRegistry   = errors.New("registry does not accept registrations")
	ErrHandlerNotFound       = errors.New("handler not found")
	ErrHandlerConstruction   = errors.New("failed to construct handler")
	ErrRequestTypeMismatch   = errors.New("request type does not match registration")
	ErrInvalidEnvelope       = errors.New("invalid envelope")
	ErrFrameTooLarge         = errors.New("frame exceeds MaxFrameSize")
	ErrPublishFailed         = errors.New("failed to publish request")
	ErrSubscribeFailed       = errors.New("failed to subscribe to channel")
	ErrTransportNotConnected = errors.New("transport not connected")
	ErrBusNotStarted         = errors.New("bus not started")
	ErrBusAlreadyStarted     = errors.New("bus already started")
)
