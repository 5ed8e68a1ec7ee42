package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
)

type PurgeNotificationSettings struct {
	Recipient   string
	MinInterval time.Duration
}

// PurgeNotifier mails the recipient when a retention pass fails. Successful passes are not reported.
type PurgeNotifier struct {
	settings PurgeNotificationSettings
	sender   EmailSender
	logger   logging.Logger
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewPurgeNotifier(settings PurgeNotificationSettings, sender EmailSender, logger logging.Logger) *PurgeNotifier {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &PurgeNotifier{
		settings: settings,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordPurge sends a failure mail when err is set.
func (n *PurgeNotifier) RecordPurge(removed int, retentionDays int, err error) {
	if err == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.last.IsZero() && n.now().Sub(n.last) < n.settings.MinInterval {
		n.logger.Info("Skipping purge failure notification due to rate limiting.")
		return
	}

	subject := "Webcam archive: cleanup failed"
	body := fmt.Sprintf("The image cleanup pass finished with errors.\n\nFiles deleted: %d\nRetention: %d days\nErrors: %v\n\nOld images may be piling up. Check permissions on the image directory.",
		removed,
		retentionDays,
		err)

	n.logger.Info("Sending purge failure notification.", "recipient", n.settings.Recipient)
	if sendErr := n.sender.SendEmail(n.settings.Recipient, subject, body); sendErr != nil {
		n.logger.Error("Failed to send purge failure notification.", "error", sendErr)
		return
	}
	n.last = n.now()
}
