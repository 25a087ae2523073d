package commands

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	mediator "github.com/TheAlpha16/mediator-go"
	"github.com/TheAlpha16/mediator-go/internal/config"
	"github.com/TheAlpha16/mediator-go/requests"
)

// listen: dispatch received requests to the reference handlers until interrupted.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Handle requests published by other mediators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := mediator.NewRegistry(append(busOptions(), mediator.WithLogger(logger))...)
			if err := requests.RegisterAll(registry, cmd.OutOrStdout()); err != nil {
				return err
			}

			if cfg.Transport == config.TransportStream {
				return listenStream(ctx, registry)
			}
			return listenValkey(ctx, registry)
		},
	}
}

func listenValkey(ctx context.Context, registry mediator.Registry) error {
	t, err := openTransport(ctx)
	if err != nil {
		return err
	}

	bus := mediator.NewBus(registry, t, busOptions()...)
	if err := bus.Start(ctx); err != nil {
		t.Close()
		return err
	}
	logger.WithField("channel", cfg.Valkey.Channel).Info("Listening")

	<-ctx.Done()
	return bus.Shutdown()
}

// listenStream runs one bus per accepted connection, all sharing registry.
func listenStream(ctx context.Context, registry mediator.Registry) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Stream.Address)
	if err != nil {
		return err
	}
	logger.WithField("address", ln.Addr().String()).Info("Listening")

	return serveStream(ctx, ln, registry, newConnBuses())
}

// serveStream accepts connections on ln until ctx is done. A connection's bus
// is shut down as soon as its peer goes away.
func serveStream(ctx context.Context, ln net.Listener, registry mediator.Registry, buses *connBuses) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var watchers sync.WaitGroup
	defer func() {
		buses.shutdownAll()
		watchers.Wait()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		remote := conn.RemoteAddr().String()

		bus := mediator.NewBus(registry, mediator.NewStreamTransport(conn, busOptions()...), busOptions()...)
		if err := bus.Start(ctx); err != nil {
			logger.WithField("remote", remote).WithError(err).Warn("Rejecting connection")
			conn.Close()
			continue
		}
		logger.WithField("remote", remote).Debug("Accepted connection")
		buses.add(bus)

		watchers.Add(1)
		go func() {
			defer watchers.Done()
			select {
			case <-bus.Done():
			case <-ctx.Done():
				return
			}
			buses.remove(bus)
			if err := bus.Shutdown(); err != nil {
				logger.WithField("remote", remote).WithError(err).Warn("Failed to stop bus")
			}
			logger.WithField("remote", remote).Debug("Connection closed")
		}()
	}
}

// connBuses tracks the buses of open stream connections.
type connBuses struct {
	mu    sync.Mutex
	buses map[mediator.Bus]struct{}
}

func newConnBuses() *connBuses {
	return &connBuses{buses: make(map[mediator.Bus]struct{})}
}

func (c *connBuses) add(bus mediator.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buses[bus] = struct{}{}
}

func (c *connBuses) remove(bus mediator.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buses, bus)
}

func (c *connBuses) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buses)
}

func (c *connBuses) shutdownAll() {
	c.mu.Lock()
	open := make([]mediator.Bus, 0, len(c.buses))
	for bus := range c.buses {
		open = append(open, bus)
	}
	c.buses = make(map[mediator.Bus]struct{})
	c.mu.Unlock()

	for _, bus := range open {
		bus.Shutdown()
	}
}
