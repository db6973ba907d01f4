// Package channel holds the delivery transports (push, email, sms, in-app)
// and the dispatcher that rate-limits and routes sends to them.
package channel

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"medremind/internal/model"
	logx "medremind/pkg/logx"
)

// Recipient is the delivery target resolved from the user record.
type Recipient struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// Payload is the rendered notification content handed to a transport.
type Payload struct {
	Type       model.NotificationType
	Title      string
	Message    string
	ScheduleID string
	Metadata   model.Metadata
}

// Result reports one transport attempt. Delivered false with a nil error
// means the transport declined without failing (e.g. no device token).
type Result struct {
	Delivered bool
	Detail    string
}

// Sender is one delivery transport.
type Sender interface {
	Channel() model.Channel
	Send(ctx context.Context, to Recipient, p Payload) (Result, error)
}

const defaultRatePerSec = 5

// Dispatcher routes sends to the registered transport for a channel,
// applying a per-channel outbound rate limit.
type Dispatcher struct {
	senders  map[model.Channel]Sender
	limiters map[model.Channel]*rate.Limiter
	perSec   int
	log      logx.Logger
}

func NewDispatcher(log logx.Logger, ratePerSec int, senders ...Sender) *Dispatcher {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		senders:  make(map[model.Channel]Sender, len(senders)),
		limiters: make(map[model.Channel]*rate.Limiter, len(senders)),
		perSec:   ratePerSec,
		log:      log,
	}
	for _, s := range senders {
		d.Register(s)
	}
	return d
}

// Register adds or replaces the transport for a channel.
func (d *Dispatcher) Register(s Sender) {
	ch := s.Channel()
	d.senders[ch] = s
	d.limiters[ch] = rate.NewLimiter(rate.Limit(d.perSec), d.perSec)
}

// Supports reports whether a transport is registered for the channel.
func (d *Dispatcher) Supports(ch model.Channel) bool {
	_, ok := d.senders[ch]
	return ok
}

// Send delivers through the channel's transport. Unregistered channels
// fail without reaching any provider.
func (d *Dispatcher) Send(ctx context.Context, ch model.Channel, to Recipient, p Payload) (Result, error) {
	s, ok := d.senders[ch]
	if !ok {
		return Result{}, fmt.Errorf("channel %s is not supported", ch)
	}
	if err := d.limiters[ch].Wait(ctx); err != nil {
		return Result{}, err
	}

	res, err := s.Send(ctx, to, p)
	if err != nil {
		d.log.Warn("channel send failed",
			logx.String("channel", string(ch)),
			logx.String("user_id", to.UserID),
			logx.Err(err))
		return res, err
	}
	d.log.Debug("channel send done",
		logx.String("channel", string(ch)),
		logx.String("user_id", to.UserID),
		logx.Bool("delivered", res.Delivered))
	return res, nil
}
