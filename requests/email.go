package requests

import (
	"context"
	"fmt"
	"io"

	mediator "github.com/TheAlpha16/mediator-go"
)

type EmailRequest struct {
	Message string `json:"message"`
}

func (EmailRequest) Kind() mediator.Kind { return EmailKind }

type EmailHandler struct {
	out io.Writer
}

func NewEmailHandler(out io.Writer) *EmailHandler {
	return &EmailHandler{out: out}
}

func (h *EmailHandler) Handle(ctx context.Context, request EmailRequest) {
	fmt.Fprintf(h.out, "Handling %s: %s\n", request.Kind(), request.Message)
}
