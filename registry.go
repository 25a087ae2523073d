package mediator

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

const RegistryCaller = "Registry"

// Registry routes requests to the handler registered for their kind.
type Registry interface {
	// Send dispatches request and drops it silently when it is nil, its kind is
	// unregistered, or the handler cannot be constructed.
	Send(ctx context.Context, request Request)

	// TrySend dispatches request and reports why it was not handled.
	TrySend(ctx context.Context, request Request) error

	// Decode rebuilds the registered request type carried by env.
	Decode(env Envelope) (Request, error)

	Kinds() []Kind
	HandlerKind(kind Kind) (string, bool)
}

// handlerAdder is implemented by registries that accept Register calls.
type handlerAdder interface {
	addHandler(reg *registration)
}

type registration struct {
	kind        Kind
	handlerKind string
	dispatch    func(ctx context.Context, request Request) error
	decode      func(payload []byte) (Request, error)
}

// Register binds request type R to handlers built by factory. A fresh handler
// is built for every dispatch. Registering a kind again replaces the previous
// handler.
func Register[R Request, H RequestHandler[R]](r Registry, factory func() (H, error)) error {
	if factory == nil {
		return ErrNilFactory
	}

	var zero R
	kind, err := kindOfType[R]()
	if err != nil {
		return err
	}

	var handler H
	reg := &registration{
		kind:        kind,
		handlerKind: fmt.Sprintf("%T", handler),
		dispatch: func(ctx context.Context, request Request) error {
			typed, ok := request.(R)
			if !ok {
				return fmt.Errorf("%w: got %T, registered %T", ErrRequestTypeMismatch, request, zero)
			}
			h, err := factory()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrHandlerConstruction, err)
			}
			h.Handle(ctx, typed)
			return nil
		},
		decode: func(payload []byte) (Request, error) {
			var request R
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &request); err != nil {
					return nil, err
				}
			}
			return request, nil
		},
	}

	switch adder := r.(type) {
	case handlerAdder:
		adder.addHandler(reg)
		return nil
	}
	return ErrUnsupportedRegistry
}

// kindOfType reads the kind of R from a sample value. Pointer types get a
// pointer to a fresh zero value, so value-receiver Kind methods work too.
func kindOfType[R Request]() (kind Kind, err error) {
	var sample R
	if any(sample) == nil {
		return "", fmt.Errorf("%w: interface types have no kind", ErrInvalidRequestType)
	}
	if t := reflect.TypeFor[R](); t.Kind() == reflect.Ptr {
		sample = reflect.New(t.Elem()).Interface().(R)
	}

	defer func() {
		if r := recover(); r != nil {
			kind, err = "", fmt.Errorf("%w: %T.Kind panicked: %v", ErrInvalidRequestType, sample, r)
		}
	}()
	kind = sample.Kind()
	if kind == "" {
		return "", fmt.Errorf("%w: %T has an empty kind", ErrInvalidRequestType, sample)
	}
	return kind, nil
}

// RegisterFunc registers fn as the handler for request type R.
func RegisterFunc[R Request](r Registry, fn func(ctx context.Context, request R)) error {
	if fn == nil {
		return ErrNilFactory
	}
	return Register[R](r, func() (HandlerFunc[R], error) {
		return HandlerFunc[R](fn), nil
	})
}

type registryImpl struct {
	handlers map[Kind]*registration
	mu       sync.RWMutex
	options  Options
	logger   *logrus.Logger
}

func (r *registryImpl) addHandler(reg *registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, exists := r.handlers[reg.kind]; exists {
		r.logger.WithFields(logrus.Fields{
			"kind":     reg.kind,
			"previous": prev.handlerKind,
			"handler":  reg.handlerKind,
		}).Debug("Replacing handler")
	} else {
		r.logger.WithFields(logrus.Fields{
			"kind":    reg.kind,
			"handler": reg.handlerKind,
		}).Debug("Registering handler")
	}
	r.handlers[reg.kind] = reg
}

func (r *registryImpl) lookup(kind Kind) (*registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[kind]
	return reg, ok
}

func (r *registryImpl) Send(ctx context.Context, request Request) {
	if err := r.TrySend(ctx, request); err != nil {
		kind := kindOf(request)
		r.logger.WithField("kind", kind).WithError(err).Debug("Dropping request")
		r.options.OnError(ctx, kind, err)
	}
}

func (r *registryImpl) TrySend(ctx context.Context, request Request) error {
	if isNil(request) {
		return ErrNilRequest
	}

	kind := request.Kind()
	reg, ok := r.lookup(kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, kind)
	}
	return reg.dispatch(ctx, request)
}

func (r *registryImpl) Decode(env Envelope) (Request, error) {
	reg, ok := r.lookup(env.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, env.Kind)
	}

	request, err := reg.decode(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEnvelope, env.Kind, err)
	}
	return request, nil
}

func (r *registryImpl) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (r *registryImpl) HandlerKind(kind Kind) (string, bool) {
	reg, ok := r.lookup(kind)
	if !ok {
		return "", false
	}
	return reg.handlerKind, true
}

func NewRegistry(opts ...Option) Registry {
	options := buildOptions(opts)
	return &registryImpl{
		handlers: make(map[Kind]*registration),
		options:  options,
		logger:   options.logger(RegistryCaller),
	}
}

// isNil reports whether request is nil or a typed nil.
func isNil(request Request) bool {
	if request == nil {
		return true
	}
	v := reflect.ValueOf(request)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func kindOf(request Request) Kind {
	if isNil(request) {
		return ""
	}
	return request.Kind()
}
