// Package requests holds the email and notification requests and the handlers
// that print them.
package requests

import (
	"errors"
	"fmt"
	"io"
	"strings"

	mediator "github.com/TheAlpha16/mediator-go"
)

const (
	EmailKind        mediator.Kind = "EmailRequest"
	NotificationKind mediator.Kind = "NotificationRequest"
)

var ErrUnknownKind = errors.New("unknown request kind")

var aliases = map[string]mediator.Kind{
	"email":                                  EmailKind,
	"notification":                           NotificationKind,
	strings.ToLower(string(EmailKind)):        EmailKind,
	strings.ToLower(string(NotificationKind)): NotificationKind,
}

// New builds the request named by kind, which is either a request kind or
// one of the short names "email" and "notification".
func New(kind, message string) (mediator.Request, error) {
	switch aliases[strings.ToLower(kind)] {
	case EmailKind:
		return EmailRequest{Message: message}, nil
	case NotificationKind:
		return NotificationRequest{Message: message}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// RegisterAll binds both request kinds to handlers writing to out.
func RegisterAll(r mediator.Registry, out io.Writer) error {
	err := mediator.Register[EmailRequest](r, func() (*EmailHandler, error) {
		return NewEmailHandler(out), nil
	})
	if err != nil {
		return err
	}

	return mediator.Register[NotificationRequest](r, func() (*NotificationHandler, error) {
		return NewNotificationHandler(out), nil
	})
}
