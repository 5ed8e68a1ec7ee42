package auth

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Info(msg string, args ...any)  {}
func (l *recordingLogger) Error(msg string, args ...any) {}
func (l *recordingLogger) Debug(msg string, args ...any) {}
func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

type notifierFunc func(sourceIP, deviceID string, count int) error

func (f notifierFunc) NotifyRepeatedAuthFailure(sourceIP, deviceID string, count int) error {
	return f(sourceIP, deviceID, count)
}

func header(pairs ...string) http.Header {
	h := http.Header{}
	for i := 0; i < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func TestModernCredentials_HeaderOrder(t *testing.T) {
	cases := []struct {
		name string
		h    http.Header
		want string
	}{
		{"device token wins", header("X-Device-Token", "dev", "Authorization", "Bearer auth"), "dev"},
		{"auth token header", header("X-Auth-Token", "legacy-header"), "legacy-header"},
		{"bearer", header("Authorization", "Bearer abc123"), "abc123"},
		{"lowercase bearer", header("authorization", "bearer abc123"), "abc123"},
		{"forwarded", header("X-Forwarded-Authorization", "Bearer fwd"), "fwd"},
		{"original", header("X-Original-Authorization", "Bearer orig"), "orig"},
		{"empty device token falls through", header("X-Device-Token", " ", "Authorization", "Bearer next"), "next"},
		{"bare scheme", header("Authorization", "Bearer"), ""},
		{"none", header(), ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds := ModernCredentials(tc.h, "10.0.0.1")
			assert.Equal(t, tc.want, creds.Token)
			assert.Equal(t, ProtocolModern, creds.Protocol)
		})
	}
}

func TestModernCredentials_DeviceID(t *testing.T) {
	creds := ModernCredentials(header("x-device-id", " AA:BB:CC:DD:EE:FF "), "10.0.0.1")
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", creds.DeviceID)
	assert.Equal(t, "10.0.0.1", creds.SourceIP)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "tok", BearerToken("Bearer tok"))
	assert.Equal(t, "tok", BearerToken("BEARER   tok "))
	assert.Equal(t, "tok", BearerToken("tok"))
	assert.Equal(t, "Bearertok", BearerToken("Bearertok"))
	assert.Equal(t, "", BearerToken("bearer"))
	assert.Equal(t, "", BearerToken(""))
}

func TestGateway_Authenticate(t *testing.T) {
	gw := NewGateway(nil, []string{"secret-1", " secret-2 ", ""}, nil, nil)

	assert.NoError(t, gw.Authenticate(Credentials{Token: "secret-1"}))
	assert.NoError(t, gw.Authenticate(LegacyCredentials("secret-2", "cam", "")))

	err := gw.Authenticate(Credentials{Token: "secret-3"})
	assert.True(t, IsUnauthorizedError(err))

	err = gw.Authenticate(Credentials{})
	assert.True(t, IsUnauthorizedError(err))
	assert.Contains(t, err.Error(), "missing token")

	// a token that is a prefix of a valid one is not valid
	assert.Error(t, gw.Authenticate(Credentials{Token: "secret"}))
}

func TestGateway_EmptyTokenSetRejectsEverything(t *testing.T) {
	gw := NewGateway(nil, nil, nil, nil)
	assert.Error(t, gw.Authenticate(Credentials{Token: ""}))
	assert.Error(t, gw.Authenticate(Credentials{Token: "anything"}))
}

func TestGateway_WarnsOnRepeatedFailures(t *testing.T) {
	logger := &recordingLogger{}
	tracker := NewMemoryFailureTracker(WarnSettings{Threshold: 3, TimeWindow: time.Hour})
	notified := make(chan int, 5)
	gw := NewGateway(logger, []string{"secret"}, tracker, notifierFunc(func(sourceIP, deviceID string, count int) error {
		notified <- count
		return nil
	}))

	for i := 0; i < 5; i++ {
		err := gw.Authenticate(Credentials{Token: "wrong", SourceIP: "10.0.0.9"})
		assert.Error(t, err, "failures never turn into a lockout or a different error")
	}
	assert.NoError(t, gw.Authenticate(Credentials{Token: "secret", SourceIP: "10.0.0.9"}))

	repeated := 0
	for _, w := range logger.warns {
		if w == "Repeated authentication failures" {
			repeated++
		}
	}
	assert.Equal(t, 1, repeated)

	select {
	case count := <-notified:
		assert.Equal(t, 3, count)
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}
	assert.Empty(t, notified)
}
