package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medremind/internal/model"
	"medremind/internal/tokens"
	logx "medremind/pkg/logx"
)

func fcmServer(t *testing.T, handler func(msg fcmMessage) fcmResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fcm/send", r.URL.Path)
		require.Equal(t, "key=test-key", r.Header.Get("Authorization"))
		var msg fcmMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(msg)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPushSenderDelivers(t *testing.T) {
	var got fcmMessage
	srv := fcmServer(t, func(msg fcmMessage) fcmResponse {
		got = msg
		return fcmResponse{Success: 1, Results: []struct {
			MessageID string `json:"message_id"`
			Error     string `json:"error"`
		}{{MessageID: "msg-1"}}}
	})

	reg := tokens.NewMemory()
	require.NoError(t, reg.Store(context.Background(), "u1", tokens.DeviceToken{
		Token: "fcm-tok", DeviceID: "dev-1", DeviceType: tokens.DeviceAndroid,
	}))

	s, err := NewPush(PushConfig{Endpoint: srv.URL, ServerKey: "test-key"}, reg, logx.Nop())
	require.NoError(t, err)

	res, err := s.Send(context.Background(), Recipient{UserID: "u1"}, Payload{
		Type: model.TypeReminder, Title: "Medication Reminder", Message: "Time to take Aspirin",
		ScheduleID: "sched-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, "msg-1", res.Detail)
	assert.Equal(t, "fcm-tok", got.To)
	assert.Equal(t, "Medication Reminder", got.Notification.Title)
	assert.Equal(t, "sched-1", got.Data["scheduleId"])
	assert.Equal(t, "high", got.Priority)
}

func TestPushSenderNoToken(t *testing.T) {
	srv := fcmServer(t, func(fcmMessage) fcmResponse {
		t.Fatal("no request expected without a token")
		return fcmResponse{}
	})

	s, err := NewPush(PushConfig{Endpoint: srv.URL, ServerKey: "test-key"}, tokens.NewMemory(), logx.Nop())
	require.NoError(t, err)

	res, err := s.Send(context.Background(), Recipient{UserID: "u1"}, Payload{Type: model.TypeReminder})
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Contains(t, res.Detail, "no active device token")
}

func TestPushSenderStaleTokenDeactivated(t *testing.T) {
	srv := fcmServer(t, func(fcmMessage) fcmResponse {
		return fcmResponse{Failure: 1, Results: []struct {
			MessageID string `json:"message_id"`
			Error     string `json:"error"`
		}{{Error: "NotRegistered"}}}
	})

	reg := tokens.NewMemory()
	require.NoError(t, reg.Store(context.Background(), "u1", tokens.DeviceToken{
		Token: "stale", DeviceID: "dev-1", DeviceType: tokens.DeviceIOS,
	}))

	s, err := NewPush(PushConfig{Endpoint: srv.URL, ServerKey: "test-key"}, reg, logx.Nop())
	require.NoError(t, err)

	_, err = s.Send(context.Background(), Recipient{UserID: "u1"}, Payload{Type: model.TypeReminder})
	assert.ErrorContains(t, err, "NotRegistered")

	_, err = reg.ActiveToken(context.Background(), "u1")
	assert.ErrorIs(t, err, tokens.ErrNoToken)
}
