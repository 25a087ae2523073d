package mediator

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func newPipeTransports(t *testing.T) (Transport, Transport) {
	t.Helper()
	left, right := net.Pipe()
	a := NewStreamTransport(left, WithLogger(quietLogger()))
	b := NewStreamTransport(right, WithLogger(quietLogger()))
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func receive(t *testing.T, transport Transport) Envelope {
	t.Helper()
	select {
	case env, ok := <-transport.Messages():
		if !ok {
			t.Fatal("Message channel closed unexpectedly")
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for envelope")
	}
	return Envelope{}
}

func TestStreamTransportRoundTrip(t *testing.T) {
	a, b := newPipeTransports(t)
	ctx := context.Background()

	if err := b.Subscribe(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	for _, msg := range []string{"first", "second"} {
		env, err := NewEnvelope(pingRequest{Message: msg})
		if err != nil {
			t.Fatalf("Failed to build envelope: %v", err)
		}
		if err := a.Publish(ctx, env); err != nil {
			t.Fatalf("Failed to publish: %v", err)
		}
	}

	for _, want := range []string{`{"message":"first"}`, `{"message":"second"}`} {
		env := receive(t, b)
		if env.Kind != "ping" || string(env.Payload) != want {
			t.Fatalf("Expected ping %s, got: %s %s", want, env.Kind, env.Payload)
		}
	}
}

func TestStreamTransportCloseEndsMessages(t *testing.T) {
	a, b := newPipeTransports(t)

	if err := b.Subscribe(context.Background()); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	// closing the peer ends the read loop
	a.Close()

	select {
	case _, ok := <-b.Messages():
		if ok {
			t.Fatal("Expected message channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for message channel to close")
	}
}

func TestStreamTransportPublishAfterClose(t *testing.T) {
	a, _ := newPipeTransports(t)

	if err := a.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if a.IsConnected() {
		t.Fatal("Expected transport to be disconnected")
	}
	if err := a.Publish(context.Background(), Envelope{Kind: "ping"}); err != ErrTransportNotConnected {
		t.Fatalf("Expected ErrTransportNotConnected, got: %v", err)
	}
	if err := a.Subscribe(context.Background()); err != ErrTransportNotConnected {
		t.Fatalf("Expected ErrTransportNotConnected from Subscribe, got: %v", err)
	}
}

func TestStreamTransportPublishHonoursDeadline(t *testing.T) {
	// nobody reads the other end, so the write can only end by deadline
	a, _ := newPipeTransports(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, Envelope{Kind: "ping"}); err != ErrPublishFailed {
		t.Fatalf("Expected ErrPublishFailed, got: %v", err)
	}
}

func TestStreamTransportPublishToClosedPeer(t *testing.T) {
	left, right := net.Pipe()
	a := NewStreamTransport(left, WithLogger(quietLogger()))
	defer a.Close()

	right.Close()

	env, err := NewEnvelope(pingRequest{Message: "lost"})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}
	if err := a.Publish(context.Background(), env); err != ErrPublishFailed {
		t.Fatalf("Expected ErrPublishFailed, got: %v", err)
	}
	// the frame writer does not recover from a failed write
	if err := a.Publish(context.Background(), env); err != ErrPublishFailed {
		t.Fatalf("Expected ErrPublishFailed on second publish, got: %v", err)
	}
}

func TestStreamTransportDropsOversizedFrame(t *testing.T) {
	left, right := net.Pipe()
	defer left.Close()

	var mu sync.Mutex
	var reported []error
	b := NewStreamTransport(right, WithLogger(quietLogger()), WithOnError(func(ctx context.Context, kind Kind, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}))
	defer b.Close()

	if err := b.Subscribe(context.Background()); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	go func() {
		header := make([]byte, frameHeaderSize)
		binary.BigEndian.PutUint32(header, 8<<20)
		left.Write(header)
		left.Write([]byte("payload that never gets read"))
	}()

	select {
	case env, ok := <-b.Messages():
		if ok {
			t.Fatalf("Expected no envelope, got: %s", env.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the stream to be dropped")
	}

	if b.IsConnected() {
		t.Fatal("Expected transport to be disconnected after an oversized frame")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || !errors.Is(reported[0], ErrFrameTooLarge) {
		t.Fatalf("Expected ErrFrameTooLarge to be reported, got: %v", reported)
	}
}

// chunkConn serves its chunks one Read at a time.
type chunkConn struct {
	net.Conn
	chunks [][]byte
}

func (c *chunkConn) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, errors.New("no more chunks")
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

func TestFrameGuardFollowsSplitHeaders(t *testing.T) {
	frame := func(size uint32, payload string) []byte {
		out := make([]byte, frameHeaderSize, frameHeaderSize+len(payload))
		binary.BigEndian.PutUint32(out, size)
		return append(out, payload...)
	}

	first := frame(3, "abc")
	second := frame(0, "")
	third := frame(2, "de")
	oversized := frame(17, "")

	guard := &frameGuard{
		Conn: &chunkConn{chunks: [][]byte{
			first[:2],
			append(first[2:], second[:1]...),
			append(second[1:], third[:5]...),
			third[5:],
			oversized[:3],
			oversized[3:],
		}},
		limit: 16,
	}

	buf := make([]byte, 64)
	for i := 0; i < 5; i++ {
		if _, err := guard.Read(buf); err != nil {
			t.Fatalf("Read %d: unexpected error: %v", i, err)
		}
	}
	if _, err := guard.Read(buf); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("Expected ErrFrameTooLarge, got: %v", err)
	}
}
