package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
)

// Protocol is the upload flavour a request arrived with.
type Protocol int

const (
	// ProtocolModern carries the token and device id in headers and the JPEG as the body.
	ProtocolModern Protocol = iota
	// ProtocolLegacy is a multipart form with "auth", "cam" and "pic" fields.
	ProtocolLegacy
)

func (p Protocol) String() string {
	if p == ProtocolLegacy {
		return "legacy"
	}
	return "modern"
}

// Legacy form field names.
const (
	LegacyTokenField  = "auth"
	LegacyDeviceField = "cam"
	LegacyFileField   = "pic"
)

// DeviceIDHeader names the camera on modern uploads.
const DeviceIDHeader = "X-Device-ID"

// tokenHeaders are checked in order for the modern protocol. Reverse proxies
// forward the Authorization header under different names.
var tokenHeaders = []string{
	"X-Device-Token",
	"X-Auth-Token",
	"Authorization",
	"X-Forwarded-Authorization",
	"X-Original-Authorization",
}

// Credentials are what a request presents, before verification.
type Credentials struct {
	Protocol Protocol
	Token    string
	DeviceID string
	SourceIP string
}

// ModernCredentials reads the token and device id from request headers.
// Header names are matched case-insensitively.
func ModernCredentials(h http.Header, sourceIP string) Credentials {
	creds := Credentials{
		Protocol: ProtocolModern,
		DeviceID: strings.TrimSpace(h.Get(DeviceIDHeader)),
		SourceIP: sourceIP,
	}
	for _, name := range tokenHeaders {
		if token := BearerToken(h.Get(name)); token != "" {
			creds.Token = token
			break
		}
	}
	return creds
}

// LegacyCredentials builds credentials from the legacy form fields.
func LegacyCredentials(token, deviceID, sourceIP string) Credentials {
	return Credentials{
		Protocol: ProtocolLegacy,
		Token:    strings.TrimSpace(token),
		DeviceID: strings.TrimSpace(deviceID),
		SourceIP: sourceIP,
	}
}

// BearerToken strips an optional, case-insensitive "Bearer" scheme from a header value.
func BearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 6 && strings.EqualFold(value[:6], "bearer") && (value[6] == ' ' || value[6] == '\t') {
		return strings.TrimSpace(value[7:])
	}
	if strings.EqualFold(value, "bearer") {
		return ""
	}
	return value
}

type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

func NewUnauthorizedError(reason string) error {
	return &UnauthorizedError{Reason: reason}
}

func IsUnauthorizedError(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}

// Gateway decides whether an upload's token belongs to the configured token set.
type Gateway interface {
	Authenticate(creds Credentials) error
}

// FailureNotifier is told when a source crosses the failure warning threshold.
type FailureNotifier interface {
	NotifyRepeatedAuthFailure(sourceIP string, deviceID string, failureCount int) error
}

type tokenGateway struct {
	logger   logging.Logger
	tokens   [][]byte
	tracker  FailureTracker
	notifier FailureNotifier
	now      func() time.Time
}

// NewGateway accepts any of tokens. Empty tokens are ignored. tracker and notifier may be nil.
func NewGateway(logger logging.Logger, tokens []string, tracker FailureTracker, notifier FailureNotifier) Gateway {
	if logger == nil {
		logger = logging.NopLogger
	}
	if tracker == nil {
		tracker = NopFailureTracker
	}

	set := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			set = append(set, []byte(t))
		}
	}
	return &tokenGateway{
		logger:   logger,
		tokens:   set,
		tracker:  tracker,
		notifier: notifier,
		now:      time.Now,
	}
}

// validToken compares against every configured token so timing does not reveal which one matched.
func (g *tokenGateway) validToken(token string) bool {
	if token == "" {
		return false
	}
	presented := []byte(token)
	match := 0
	for _, t := range g.tokens {
		match |= subtle.ConstantTimeCompare(presented, t)
	}
	return match == 1
}

func (g *tokenGateway) Authenticate(creds Credentials) error {
	if g.validToken(creds.Token) {
		return nil
	}

	reason := "invalid token"
	if creds.Token == "" {
		reason = "missing token"
	}

	count := g.tracker.RecordFailure(creds.DeviceID, creds.SourceIP, g.now())
	if g.tracker.ShouldWarn(count) {
		g.logger.Warn("Repeated authentication failures",
			"source_ip", creds.SourceIP, "device_id", creds.DeviceID, "failures", count)
		if g.notifier != nil {
			// mail delivery runs in the background
			go g.notifier.NotifyRepeatedAuthFailure(creds.SourceIP, creds.DeviceID, count)
		}
	}
	g.logger.Warn("Upload rejected", "reason", reason, "protocol", creds.Protocol.String(),
		"source_ip", creds.SourceIP, "device_id", creds.DeviceID)

	return NewUnauthorizedError(reason)
}
