package mediator

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/goframe"
)

const StreamTransportCaller = "StreamTransport"

// MaxFrameSize bounds a single encoded envelope on a stream, in both directions.
const MaxFrameSize = 1 << 20

const frameHeaderSize = 4

var (
	streamEncoderConfig = goframe.EncoderConfig{
		ByteOrder:                       binary.BigEndian,
		LengthFieldLength:               4,
		LengthAdjustment:                0,
		LengthIncludesLengthFieldLength: false,
	}

	streamDecoderConfig = goframe.DecoderConfig{
		ByteOrder:           binary.BigEndian,
		LengthFieldOffset:   0,
		LengthFieldLength:   4,
		LengthAdjustment:    0,
		InitialBytesToStrip: 4,
	}
)

// StreamTransport carries length-prefixed JSON envelopes over a single connection.
type StreamTransport struct {
	raw          net.Conn
	guard        *frameGuard
	conn         goframe.FrameConn
	mu           sync.RWMutex
	writeMu      sync.Mutex
	isSubscribed bool
	connected    bool
	msgChan      chan Envelope
	closedChan   chan struct{}
	once         sync.Once
	options      Options
	logger       *logrus.Logger
}

// Publish writes one frame holding env
func (s *StreamTransport) Publish(ctx context.Context, env Envelope) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return ErrTransportNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil || len(data) > MaxFrameSize {
		return ErrInvalidEnvelope
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.raw.SetWriteDeadline(deadline)
		defer s.raw.SetWriteDeadline(time.Time{})
	}

	// goframe drops the flush error, so the guard keeps the last one.
	// Once a write fails the frame writer stays broken and later publishes fail too.
	s.guard.writeErr = nil
	err = s.conn.WriteFrame(data)
	if err == nil {
		err = s.guard.writeErr
	}
	if err != nil {
		s.logger.WithField("kind", env.Kind).WithError(err).Warn("Write failed")
		return ErrPublishFailed
	}
	return nil
}

// Subscribe starts the read loop
func (s *StreamTransport) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isSubscribed {
		return nil
	}

	if !s.connected {
		return ErrTransportNotConnected
	}

	go s.readLoop()

	s.isSubscribed = true
	return nil
}

func (s *StreamTransport) readLoop() {
	defer func() {
		s.mu.Lock()
		s.isSubscribed = false
		close(s.msgChan)
		s.mu.Unlock()
	}()

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			switch {
			case s.shouldStop():
			case errors.Is(err, ErrFrameTooLarge):
				s.logger.WithError(err).Warn("Dropping stream")
				s.options.OnError(context.Background(), "", err)
				s.Close()
			default:
				s.logger.WithError(err).Info("Stream closed by peer")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			s.logger.WithError(err).Warn("Discarding malformed envelope")
			s.options.OnError(context.Background(), "", ErrInvalidEnvelope)
			continue
		}

		// block rather than drop; the peer waits on the connection
		select {
		case s.msgChan <- env:
		case <-s.closedChan:
			return
		}
	}
}

// Messages returns a channel that receives envelopes read from the stream
func (s *StreamTransport) Messages() <-chan Envelope {
	return s.msgChan
}

// Close closes the underlying connection, which also ends the read loop.
// The connection is closed before taking the lock so a blocked Publish returns.
func (s *StreamTransport) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closedChan)
		err = s.raw.Close()

		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	})
	return err
}

// IsConnected returns true if the stream has not been closed
func (s *StreamTransport) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *StreamTransport) shouldStop() bool {
	select {
	case <-s.closedChan:
		return true
	default:
		return false
	}
}

// NewStreamTransport wraps an established connection
func NewStreamTransport(conn net.Conn, opts ...Option) Transport {
	options := buildOptions(opts)
	guard := &frameGuard{Conn: conn, limit: MaxFrameSize}

	return &StreamTransport{
		raw:        conn,
		guard:      guard,
		conn:       goframe.NewLengthFieldBasedFrameConn(streamEncoderConfig, streamDecoderConfig, guard),
		connected:  true,
		msgChan:    make(chan Envelope, options.MsgBufferSize),
		closedChan: make(chan struct{}),
		options:    options,
		logger:     options.logger(StreamTransportCaller),
	}
}

// DialStreamTransport connects to address over TCP
func DialStreamTransport(ctx context.Context, address string, opts ...Option) (Transport, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(conn, opts...), nil
}

// frameGuard sits between goframe and the connection. It follows the length
// prefixes on the inbound byte stream and fails the read that completes an
// oversized header, before goframe allocates the payload. It also keeps the
// last write error, which goframe loses when it flushes.
type frameGuard struct {
	net.Conn
	limit int

	header    [frameHeaderSize]byte
	have      int
	remaining int

	// guarded by StreamTransport.writeMu
	writeErr error
}

func (g *frameGuard) Read(p []byte) (int, error) {
	n, err := g.Conn.Read(p)
	for i := 0; i < n; {
		if g.remaining > 0 {
			step := min(g.remaining, n-i)
			g.remaining -= step
			i += step
			continue
		}

		g.header[g.have] = p[i]
		g.have++
		i++
		if g.have < frameHeaderSize {
			continue
		}
		g.have = 0
		size := binary.BigEndian.Uint32(g.header[:])
		if uint64(size) > uint64(g.limit) {
			return 0, ErrFrameTooLarge
		}
		g.remaining = int(size)
	}
	return n, err
}

func (g *frameGuard) Write(p []byte) (int, error) {
	n, err := g.Conn.Write(p)
	if err != nil {
		g.writeErr = err
	}
	return n, err
}
