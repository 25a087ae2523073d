package commands

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	mediator "github.com/TheAlpha16/mediator-go"
	"github.com/TheAlpha16/mediator-go/internal/config"
	"github.com/TheAlpha16/mediator-go/internal/logs"
)

var (
	configPath string
	logLevel   string
	transport  string
	address    string
	channel    string

	cfg    *config.Config
	logger *logrus.Logger
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mediator",
		Short:        "Route requests to their registered handlers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				c = loaded
			}

			flags := cmd.Flags()
			if flags.Changed("log-level") {
				c.LogLevel = logLevel
			}
			if flags.Changed("transport") {
				c.Transport = transport
			}
			if flags.Changed("address") {
				if c.Transport == config.TransportStream {
					c.Stream.Address = address
				} else {
					c.Valkey.Address = address
				}
			}
			if flags.Changed("channel") {
				c.Valkey.Channel = channel
			}
			if err := c.Validate(); err != nil {
				return err
			}

			if err := logs.SetLevel(c.LogLevel); err != nil {
				return err
			}
			logger = logs.NewLogger("CLI")
			cfg = c
			return nil
		},
		RunE: runDemo,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an HCL config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&transport, "transport", config.TransportValkey, "transport: valkey or stream")
	root.PersistentFlags().StringVar(&address, "address", "", "transport address (default from config)")
	root.PersistentFlags().StringVar(&channel, "channel", "", "valkey channel (default from config)")

	root.AddCommand(demoCmd(), publishCmd(), listenCmd())
	return root
}

func busOptions() []mediator.Option {
	return []mediator.Option{
		mediator.WithWorkers(cfg.Workers),
		mediator.WithMsgBufferSize(cfg.BufferSize),
		mediator.WithOnError(func(ctx context.Context, kind mediator.Kind, err error) {
			logger.WithField("kind", kind).WithError(err).Warn("Request not handled")
		}),
	}
}

// openTransport connects the transport selected by the config.
func openTransport(ctx context.Context) (mediator.Transport, error) {
	if cfg.Transport == config.TransportStream {
		return mediator.DialStreamTransport(ctx, cfg.Stream.Address, busOptions()...)
	}

	client, err := mediator.NewValkeyClient(cfg.Valkey.Address)
	if err != nil {
		return nil, err
	}
	return mediator.NewValkeyTransport(client, cfg.Valkey.Channel, busOptions()...), nil
}
