package channel

import (
	"context"
	"fmt"

	"medremind/internal/model"
)

// inAppSender records the notification for the client to pull; the record
// itself is the delivery, so it always succeeds.
type inAppSender struct{}

func NewInApp() Sender { return inAppSender{} }

func (inAppSender) Channel() model.Channel { return model.ChannelInApp }

func (inAppSender) Send(_ context.Context, _ Recipient, _ Payload) (Result, error) {
	return Result{Delivered: true, Detail: "stored for in-app delivery"}, nil
}

// notImplementedSender holds a channel slot that has no transport yet
// (voice calls, hardware buzzer).
type notImplementedSender struct {
	ch model.Channel
}

func NewNotImplemented(ch model.Channel) Sender { return notImplementedSender{ch: ch} }

func (s notImplementedSender) Channel() model.Channel { return s.ch }

func (s notImplementedSender) Send(_ context.Context, _ Recipient, _ Payload) (Result, error) {
	return Result{}, fmt.Errorf("channel %s is not implemented", s.ch)
}
