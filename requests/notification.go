package requests

import (
	"context"
	"fmt"
	"io"

	mediator "github.com/TheAlpha16/mediator-go"
)

type NotificationRequest struct {
	Message string `json:"message"`
}

func (NotificationRequest) Kind() mediator.Kind { return NotificationKind }

type NotificationHandler struct {
	out io.Writer
}

func NewNotificationHandler(out io.Writer) *NotificationHandler {
	return &NotificationHandler{out: out}
}

func (h *NotificationHandler) Handle(ctx context.Context, request NotificationRequest) {
	fmt.Fprintf(h.out, "Handling %s: %s\n", request.Kind(), request.Message)
}
