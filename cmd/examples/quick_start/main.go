package main

import (
	"context"
	"log"
	"os"

	mediator "github.com/TheAlpha16/mediator-go"
	"github.com/TheAlpha16/mediator-go/requests"
)

func main() {
	ctx := context.Background()
	registry := mediator.NewRegistry()

	// Register handlers
	err := mediator.Register[requests.EmailRequest](registry, func() (*requests.EmailHandler, error) {
		return requests.NewEmailHandler(os.Stdout), nil
	})
	if err != nil {
		log.Fatalf("Failed to register email handler: %v", err)
	}

	err = mediator.Register[requests.NotificationRequest](registry, func() (*requests.NotificationHandler, error) {
		return requests.NewNotificationHandler(os.Stdout), nil
	})
	if err != nil {
		log.Fatalf("Failed to register notification handler: %v", err)
	}

	// Send requests
	registry.Send(ctx, requests.EmailRequest{Message: "Hello, this is an email!"})
	registry.Send(ctx, requests.NotificationRequest{Message: "Hello, this is a notification!"})
}
