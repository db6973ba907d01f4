package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTokenValidate(t *testing.T) {
	cases := []struct {
		name  string
		token DeviceToken
		ok    bool
	}{
		{"valid android", DeviceToken{Token: "fcm-abc", DeviceID: "dev-1", DeviceType: DeviceAndroid}, true},
		{"valid web", DeviceToken{Token: "fcm-abc", DeviceID: "dev-1", DeviceType: DeviceWeb, AppVersion: "1.2.0"}, true},
		{"missing token", DeviceToken{DeviceID: "dev-1", DeviceType: DeviceIOS}, false},
		{"missing device id", DeviceToken{Token: "fcm-abc", DeviceType: DeviceIOS}, false},
		{"bad device type", DeviceToken{Token: "fcm-abc", DeviceID: "dev-1", DeviceType: "TOASTER"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.token.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMemoryRegistry(t *testing.T) {
	r := NewMemory()
	ctx := context.Background()

	_, err := r.ActiveToken(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoToken)

	first := DeviceToken{Token: "tok-1", DeviceID: "dev-1", DeviceType: DeviceAndroid, UpdatedAt: time.Now()}
	require.NoError(t, r.Store(ctx, "u1", first))

	got, err := r.ActiveToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.Token)

	// A new device replaces the previous token.
	second := DeviceToken{Token: "tok-2", DeviceID: "dev-2", DeviceType: DeviceIOS}
	require.NoError(t, r.Store(ctx, "u1", second))
	got, err = r.ActiveToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.Token)
	assert.Equal(t, DeviceIOS, got.DeviceType)

	require.NoError(t, r.Deactivate(ctx, "u1"))
	_, err = r.ActiveToken(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoToken)

	// Deactivating an absent token is fine.
	assert.NoError(t, r.Deactivate(ctx, "nobody"))

	assert.Error(t, r.Store(ctx, "u2", DeviceToken{Token: "", DeviceID: "d", DeviceType: DeviceWeb}))
}
