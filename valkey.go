package mediator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valkey-io/valkey-go"
)

const ValkeyTransportCaller = "ValkeyTransport"

type ValkeyTransport struct {
	client       valkey.Client
	channel      string
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	isSubscribed bool
	connected    bool
	msgChan      chan Envelope
	closedChan   chan struct{}
	once         sync.Once
	options      Options
	logger       *logrus.Logger
}

// Publish publishes an envelope to the valkey channel
func (v *ValkeyTransport) Publish(ctx context.Context, env Envelope) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.connected {
		return ErrTransportNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return ErrInvalidEnvelope
	}

	cmd := v.client.B().Publish().Channel(v.channel).Message(string(data)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		v.logger.WithField("kind", env.Kind).WithError(err).Warn("Publish failed")
		return ErrPublishFailed
	}

	return nil
}

// Subscribe starts subscribing to the valkey channel
func (v *ValkeyTransport) Subscribe(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.isSubscribed {
		return nil
	}

	if !v.connected {
		return ErrTransportNotConnected
	}

	go v.subscriptionLoop()

	v.isSubscribed = true
	return nil
}

const (
	resubscribeDelay = 100 * time.Millisecond
	maxRetryDelay    = 30 * time.Second
)

// subscriptionLoop holds the SUBSCRIBE open and reopens it whenever Receive
// returns, until the transport is closed. Failed attempts back off
// exponentially; a clean return resets the backoff.
func (v *ValkeyTransport) subscriptionLoop() {
	defer func() {
		v.mu.Lock()
		v.isSubscribed = false
		close(v.msgChan)
		v.mu.Unlock()
	}()

	subscribe := v.client.B().Subscribe().Channel(v.channel).Build()
	delay := resubscribeDelay

	for !v.shouldStop() {
		err := v.client.Receive(v.ctx, subscribe, v.handleMessage)
		if v.shouldStop() {
			return
		}

		wait := resubscribeDelay
		if err != nil {
			v.logger.WithError(err).WithField("retry_in", delay).Warn("Subscription lost")
			wait, delay = delay, nextDelay(delay)
		} else {
			delay = resubscribeDelay
		}

		if !v.sleep(wait) {
			return
		}
	}
}

func nextDelay(d time.Duration) time.Duration {
	return min(2*d, maxRetryDelay)
}

// sleep waits for d and reports false if the transport closed meanwhile.
func (v *ValkeyTransport) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-v.ctx.Done():
		return false
	case <-v.closedChan:
		return false
	}
}

// handleMessage is the Receive callback. It runs on the client's reader, so
// a full buffer drops the envelope instead of waiting.
func (v *ValkeyTransport) handleMessage(msg valkey.PubSubMessage) {
	if msg.Channel != v.channel {
		return
	}

	env, err := decodeEnvelope(msg.Message)
	if err != nil {
		v.logger.WithError(err).Warn("Discarding malformed envelope")
		v.options.OnError(v.ctx, "", ErrInvalidEnvelope)
		return
	}

	if v.shouldStop() {
		return
	}
	select {
	case v.msgChan <- env:
	default:
		v.logger.WithField("kind", env.Kind).Warn("Message buffer full, dropping envelope")
	}
}

func decodeEnvelope(message string) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal([]byte(message), &env)
	return env, err
}

// Messages returns a channel that receives envelopes from the transport
func (v *ValkeyTransport) Messages() <-chan Envelope {
	return v.msgChan
}

// Close stops the subscription and closes the client. Later calls do nothing.
func (v *ValkeyTransport) Close() error {
	v.once.Do(func() {
		close(v.closedChan)
		v.cancel()

		v.mu.Lock()
		v.connected = false
		v.mu.Unlock()

		v.client.Close()
	})
	return nil
}

// IsConnected returns true if the transport is connected and ready
func (v *ValkeyTransport) IsConnected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

func (v *ValkeyTransport) shouldStop() bool {
	select {
	case <-v.closedChan:
		return true
	case <-v.ctx.Done():
		return true
	default:
		return false
	}
}

// NewValkeyClient creates a new valkey client with common configuration
func NewValkeyClient(address string, options ...valkey.ClientOption) (valkey.Client, error) {
	var clientOption valkey.ClientOption
	if len(options) > 0 {
		clientOption = options[0]
	}
	if len(clientOption.InitAddress) == 0 {
		clientOption.InitAddress = []string{address}
	}

	return valkey.NewClient(clientOption)
}

// NewValkeyTransport creates a new valkey transport instance
func NewValkeyTransport(client valkey.Client, channel string, opts ...Option) Transport {
	ctx, cancel := context.WithCancel(context.Background())
	options := buildOptions(opts)

	return &ValkeyTransport{
		client:     client,
		channel:    channel,
		ctx:        ctx,
		cancel:     cancel,
		connected:  true,
		msgChan:    make(chan Envelope, options.MsgBufferSize),
		closedChan: make(chan struct{}),
		options:    options,
		logger:     options.logger(ValkeyTransportCaller),
	}
}
