package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"medremind/internal/model"
)

// SMSConfig configures the Twilio transport.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type smsCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

type smsSender struct {
	api  smsCreator
	from string
}

func NewSMS(cfg SMSConfig) (Sender, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("sms account sid and auth token are required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("sms from number is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &smsSender{api: client.Api, from: cfg.From}, nil
}

func (s *smsSender) Channel() model.Channel { return model.ChannelSMS }

func (s *smsSender) Send(ctx context.Context, to Recipient, p Payload) (Result, error) {
	if strings.TrimSpace(to.Phone) == "" {
		return Result{Delivered: false, Detail: "recipient has no phone number"}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to.Phone)
	params.SetFrom(s.from)
	params.SetBody(SMSBody(p))

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return Result{}, fmt.Errorf("twilio send: %w", err)
	}
	detail := ""
	if msg != nil && msg.Sid != nil {
		detail = *msg.Sid
	}
	return Result{Delivered: true, Detail: detail}, nil
}

// SMSBody keeps texts short: title and message, nothing else.
func SMSBody(p Payload) string {
	return p.Title + ": " + p.Message
}
