package commands

import (
	"github.com/spf13/cobra"

	mediator "github.com/TheAlpha16/mediator-go"
	"github.com/TheAlpha16/mediator-go/requests"
)

// publish <kind> <message>: send one request over the configured transport.
func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <kind> <message>",
		Short: "Publish a request to listening mediators",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := requests.New(args[0], args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			t, err := openTransport(ctx)
			if err != nil {
				return err
			}

			bus := mediator.NewBus(mediator.NewRegistry(mediator.WithLogger(logger)), t, busOptions()...)
			if err := bus.Start(ctx); err != nil {
				t.Close()
				return err
			}
			defer bus.Shutdown()

			if err := bus.Publish(ctx, request); err != nil {
				return err
			}
			logger.WithField("kind", request.Kind()).Info("Published")
			return nil
		},
	}
}
