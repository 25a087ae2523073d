package commands

import (
	"github.com/spf13/cobra"

	mediator "github.com/TheAlpha16/mediator-go"
	"github.com/TheAlpha16/mediator-go/requests"
)

// demo: register the email and notification handlers and send one of each.
func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Dispatch one email and one notification request locally",
		Args:  cobra.NoArgs,
		RunE:  runDemo,
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	registry := mediator.NewRegistry(mediator.WithLogger(logger))
	if err := requests.RegisterAll(registry, cmd.OutOrStdout()); err != nil {
		return err
	}

	ctx := cmd.Context()
	registry.Send(ctx, requests.EmailRequest{Message: "Hello, this is an email!"})
	registry.Send(ctx, requests.NotificationRequest{Message: "Hello, this is a notification!"})
	return nil
}
