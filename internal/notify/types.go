package notify

import (
	"time"

	"medremind/internal/model"
)

// Intent describes one notification to be sent. Channels may be empty, in
// which case the type's default channel set applies.
type Intent struct {
	UserID       string
	ScheduleID   string
	Type         model.NotificationType
	Title        string
	Message      string
	ScheduledFor time.Time
	Channels     []model.Channel
	Metadata     model.Metadata
}

// SendResult is the outcome of one sendNotification call. Success uses
// at-least-one-channel semantics; ChannelResults reports each channel
// individually.
type SendResult struct {
	Success        bool
	NotificationID string
	Errors         []string
	ChannelResults map[model.Channel]bool
}

// CaregiverResult pairs an escalation fan-out target with its outcome.
type CaregiverResult struct {
	CaregiverID  string
	Relationship string
	Result       SendResult
}

// defaultChannels maps a notification type to the channels tried when the
// intent does not name any explicitly.
func defaultChannels(t model.NotificationType) []model.Channel {
	switch t {
	case model.TypeReminder:
		return []model.Channel{model.ChannelPush, model.ChannelEmail}
	case model.TypeMissedDose:
		return []model.Channel{model.ChannelPush, model.ChannelSMS}
	case model.TypeEscalation:
		return []model.Channel{model.ChannelPush, model.ChannelEmail, model.ChannelSMS}
	case model.TypeConfirmationRequest:
		return []model.Channel{model.ChannelInApp}
	case model.TypeSystem:
		return []model.Channel{model.ChannelEmail, model.ChannelInApp}
	default:
		return []model.Channel{model.ChannelEmail}
	}
}
