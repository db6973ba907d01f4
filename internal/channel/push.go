package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"medremind/internal/model"
	"medremind/internal/tokens"
	logx "medremind/pkg/logx"
)

const (
	defaultFCMEndpoint = "https://fcm.googleapis.com"
	defaultPushTimeout = 10 * time.Second
)

// PushConfig configures the FCM transport.
type PushConfig struct {
	Endpoint  string
	ServerKey string
	Timeout   time.Duration
}

// pushSender delivers through FCM. The device token comes from the
// registry; a user with no registered device gets a declined result, not
// an error.
type pushSender struct {
	client   *resty.Client
	registry tokens.Registry
	log      logx.Logger
}

func NewPush(cfg PushConfig, registry tokens.Registry, log logx.Logger) (Sender, error) {
	if strings.TrimSpace(cfg.ServerKey) == "" {
		return nil, errors.New("push server key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultFCMEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Authorization", "key="+cfg.ServerKey).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if log.IsZero() {
		log = logx.Nop()
	}
	return &pushSender{client: client, registry: registry, log: log}, nil
}

func (p *pushSender) Channel() model.Channel { return model.ChannelPush }

type fcmMessage struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Priority     string            `json:"priority"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (p *pushSender) Send(ctx context.Context, to Recipient, payload Payload) (Result, error) {
	token, err := p.registry.ActiveToken(ctx, to.UserID)
	if errors.Is(err, tokens.ErrNoToken) {
		p.log.Debug("push skipped, no device token", logx.String("user_id", to.UserID))
		return Result{Delivered: false, Detail: "no active device token"}, nil
	}
	if err != nil {
		return Result{}, err
	}

	msg := fcmMessage{
		To: token.Token,
		Notification: fcmNotification{
			Title: payload.Title,
			Body:  payload.Message,
			Sound: "default",
		},
		Data:     PushData(payload),
		Priority: "high",
	}

	var out fcmResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&out).
		Post("/fcm/send")
	if err != nil {
		return Result{}, fmt.Errorf("fcm request: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("fcm request: status %d", resp.StatusCode())
	}

	if out.Failure > 0 && len(out.Results) > 0 {
		fcmErr := out.Results[0].Error
		if fcmErr == "NotRegistered" || fcmErr == "InvalidRegistration" {
			// Stale token; drop it so the next send declines cleanly.
			if derr := p.registry.Deactivate(ctx, to.UserID); derr != nil {
				p.log.Warn("deactivating stale token failed",
					logx.String("user_id", to.UserID), logx.Err(derr))
			}
		}
		return Result{}, fmt.Errorf("fcm delivery: %s", fcmErr)
	}

	detail := ""
	if len(out.Results) > 0 {
		detail = out.Results[0].MessageID
	}
	return Result{Delivered: true, Detail: detail}, nil
}

// PushData renders the payload's data map for the mobile client. Values
// must be strings end to end.
func PushData(p Payload) map[string]string {
	data := map[string]string{
		"type":   string(p.Type),
		"action": pushAction(p.Type),
	}
	if p.ScheduleID != "" {
		data["scheduleId"] = p.ScheduleID
	}
	for k, v := range p.Metadata.StringMap() {
		if _, taken := data[k]; !taken {
			data[k] = v
		}
	}
	return data
}

func pushAction(t model.NotificationType) string {
	switch t {
	case model.TypeReminder:
		return "confirm_dose"
	case model.TypeMissedDose:
		return "confirm_dose"
	case model.TypeEscalation:
		return "check_senior"
	default:
		return "open_app"
	}
}
