package mediator

import (
	"context"
	"sync"

	"github.com/panjf2000/ants"
	"github.com/sirupsen/logrus"
	"github.com/valkey-io/valkey-go"
)

const BusCaller = "Bus"

// Bus carries requests between processes and dispatches the ones it receives
// through a Registry
type Bus interface {
	Publish(ctx context.Context, request Request) error
	Start(ctx context.Context) error
	Shutdown() error
	IsRunning() bool
	Registry() Registry

	// Done is closed once the receive loop exits, either because the transport
	// stopped delivering or the bus was shut down. It is nil before Start.
	Done() <-chan struct{}
}

type busImpl struct {
	registry  Registry
	transport Transport
	pool      *ants.Pool
	options   Options
	logger    *logrus.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	started   bool
	mu        sync.RWMutex
}

// Registry returns the registry received requests are dispatched through
func (b *busImpl) Registry() Registry {
	return b.registry
}

// Publish encodes request and hands it to the transport
func (b *busImpl) Publish(ctx context.Context, request Request) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.started {
		return ErrBusNotStarted
	}

	env, err := NewEnvelope(request)
	if err != nil {
		return err
	}

	return b.transport.Publish(ctx, env)
}

// Start begins listening for envelopes from the transport
func (b *busImpl) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrBusAlreadyStarted
	}

	if !b.transport.IsConnected() {
		return ErrTransportNotConnected
	}

	pool, err := ants.NewPool(b.options.Workers)
	if err != nil {
		return err
	}

	if err := b.transport.Subscribe(ctx); err != nil {
		pool.Release()
		return err
	}
	b.pool = pool
	b.done = make(chan struct{})

	b.wg.Add(1)
	go func(done chan struct{}) {
		defer b.wg.Done()
		defer close(done)
		b.processMessages()
	}(b.done)

	b.started = true
	b.logger.WithField("workers", b.options.Workers).Info("Bus started")
	return nil
}

// processMessages hands every received envelope to the worker pool
func (b *busImpl) processMessages() {
	msgChan := b.transport.Messages()

	for {
		select {
		case env, ok := <-msgChan:
			if !ok {
				return
			}

			// the receive loop still holds its own count here
			b.wg.Add(1)
			err := b.pool.Submit(func() {
				defer b.wg.Done()
				b.dispatch(env)
			})
			if err != nil {
				b.wg.Done()
				b.logger.WithField("kind", env.Kind).WithError(err).Warn("Worker pool rejected envelope")
				b.options.OnError(b.ctx, env.Kind, err)
			}

		case <-b.ctx.Done():
			return
		}
	}
}

func (b *busImpl) dispatch(env Envelope) {
	request, err := b.registry.Decode(env)
	if err != nil {
		b.logger.WithField("kind", env.Kind).WithError(err).Debug("Dropping envelope")
		b.options.OnError(b.ctx, env.Kind, err)
		return
	}
	b.registry.Send(b.ctx, request)
}

// IsRunning returns true if the bus is currently running
func (b *busImpl) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

// Shutdown stops the receive loop, closes the transport and waits for
// handlers that are still running. Envelopes not yet handed to the pool are
// dropped.
func (b *busImpl) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}

	b.cancel()
	closeErr := b.transport.Close()

	b.wg.Wait()
	b.pool.Release()

	b.started = false
	if closeErr != nil {
		b.logger.WithError(closeErr).Warn("Bus stopped, transport close failed")
		return closeErr
	}
	b.logger.Info("Bus stopped")
	return nil
}

func (b *busImpl) Done() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.done
}

// NewBus creates a bus dispatching into registry over transport
func NewBus(registry Registry, transport Transport, opts ...Option) Bus {
	ctx, cancel := context.WithCancel(context.Background())
	options := buildOptions(opts)
	return &busImpl{
		registry:  registry,
		transport: transport,
		options:   options,
		logger:    options.logger(BusCaller),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// NewBusWithValkey creates a bus over a Valkey transport
func NewBusWithValkey(registry Registry, client valkey.Client, channel string, opts ...Option) Bus {
	transport := NewValkeyTransport(client, channel, opts...)
	return NewBus(registry, transport, opts...)
}

// NewBusWithValkeyAddress creates a bus over a Valkey transport using an address
func NewBusWithValkeyAddress(registry Registry, address, channel string, opts ...Option) (Bus, error) {
	client, err := NewValkeyClient(address)
	if err != nil {
		return nil, err
	}

	return NewBusWithValkey(registry, client, channel, opts...), nil
}
