package notificator

import (
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

// EmailNotificator sends operator alerts over SMTP. Without a host or recipient
// it only logs the alert.
type EmailNotificator struct {
	logger *logger.Logger

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string
	Recipient    string

	SMTPAuth smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ models.Alerter = (*EmailNotificator)(nil)

func NewEmailNotificator(logger *logger.Logger, SMTPHost string, SMTPPort int, SMTPUser string, SMTPPassword string, SMTPSender string, recipient string) *EmailNotificator {
	auth := smtp.PlainAuth(
		"",
		SMTPUser,
		SMTPPassword,
		SMTPHost,
	)

	return &EmailNotificator{
		logger:       logger,
		SMTPAuth:     auth,
		SMTPHost:     SMTPHost,
		SMTPPort:     SMTPPort,
		SMTPUser:     SMTPUser,
		SMTPPassword: SMTPPassword,
		SMTPSender:   SMTPSender,
		Recipient:    recipient,
		sendMail:     smtp.SendMail,
	}
}

func (e *EmailNotificator) Alert(subject, body string) {
	if e.SMTPHost == "" || e.Recipient == "" {
		e.logger.Warn("Operator alert", "subject", subject, "body", body)
		return
	}

	addr := fmt.Sprintf("%s:%s", e.SMTPHost, strconv.Itoa(e.SMTPPort))
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.SMTPSender,
		e.Recipient,
		"[donum] "+subject,
		body,
	)
	if err := e.sendMail(addr, e.SMTPAuth, e.SMTPSender, []string{e.Recipient}, []byte(msg)); err != nil {
		e.logger.Error("Failed to send operator alert", "subject", subject, "error", err)
	}
}
