package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
)

type AuthNotifier interface {
	// NotifyRepeatedAuthFailure reports a source that keeps presenting bad upload tokens.
	NotifyRepeatedAuthFailure(sourceIP string, deviceID string, failureCount int) error
}

type nopAuthNotifier struct{}

var NopAuthNotifier AuthNotifier = &nopAuthNotifier{}

// NotifyRepeatedAuthFailure does nothing and returns nil.
func (n *nopAuthNotifier) NotifyRepeatedAuthFailure(sourceIP string, deviceID string, failureCount int) error {
	return nil
}

type AuthNotificationSettings struct {
	Recipient   string
	MinInterval time.Duration
}

type emailAuthNotifier struct {
	settings          AuthNotificationSettings
	sender            EmailSender
	logger            logging.Logger
	now               func() time.Time
	lastNotification  map[string]time.Time
	notificationMutex sync.Mutex
}

func NewEmailAuthNotifier(settings AuthNotificationSettings, sender EmailSender, logger logging.Logger) AuthNotifier {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &emailAuthNotifier{
		settings:         settings,
		sender:           sender,
		logger:           logger,
		now:              time.Now,
		lastNotification: make(map[string]time.Time),
	}
}

// NotifyRepeatedAuthFailure mails the recipient at most once per MinInterval per source address.
func (n *emailAuthNotifier) NotifyRepeatedAuthFailure(sourceIP string, deviceID string, failureCount int) error {
	n.notificationMutex.Lock()
	defer n.notificationMutex.Unlock()

	if last, ok := n.lastNotification[sourceIP]; ok && n.now().Sub(last) < n.settings.MinInterval {
		n.logger.Info("Skipping authentication failure notification due to rate limiting.", "source_ip", sourceIP)
		return nil
	}

	if deviceID == "" {
		deviceID = "(none)"
	}
	subject := "Webcam uploads: repeated authentication failures"
	body := fmt.Sprintf("Repeated upload authentication failures detected.\n\nSource IP: %s\nLast device ID: %s\nFailure count: %d\n\nA camera may have an outdated token, or someone is guessing tokens. Uploads from this source keep being rejected.",
		sourceIP,
		deviceID,
		failureCount)

	n.logger.Info("Sending authentication failure notification.", "source_ip", sourceIP, "recipient", n.settings.Recipient, "failures", failureCount)
	if err := n.sender.SendEmail(n.settings.Recipient, subject, body); err != nil {
		n.logger.Error("Failed to send authentication failure notification.", "error", err, "source_ip", sourceIP)
		return err
	}

	n.lastNotification[sourceIP] = n.now()
	return nil
}
