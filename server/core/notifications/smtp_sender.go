package notifications

import (
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const defaultSmtpPort = 587

// EmailSender delivers a plain-text alert to one recipient.
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// swapped out in tests
var sendMail = smtp.SendMail

// SmtpSender delivers alerts through an SMTP relay. Authentication is only attempted when Username is set.
type SmtpSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSmtpSender creates a new SmtpSender. Port 0 means 587.
func NewSmtpSender(host string, port int, username, password, from string) *SmtpSender {
	if port == 0 {
		port = defaultSmtpPort
	}
	return &SmtpSender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

// headerValue keeps a value on a single header line.
func headerValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func (s *SmtpSender) message(to, subject, body string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + headerValue(s.From) + "\r\n")
	b.WriteString("To: " + headerValue(to) + "\r\n")
	b.WriteString("Subject: " + headerValue(subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func (s *SmtpSender) SendEmail(to, subject, body string) error {
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	return sendMail(addr, auth, s.From, []string{to}, s.message(to, subject, body, time.Now()))
}
