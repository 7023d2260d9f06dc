package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"path/filepath"
	"strings"

	"github.com/mberti/spesa/internal/expense"
)

// Sender delivers outbound mail, used for address-verification messages.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender implements Sender over plain SMTP.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender builds a Sender for host:port with PLAIN auth. username
// may be empty for unauthenticated relays.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
		auth: auth,
	}
}

// Send delivers a plain-text message.
func (s *SMTPSender) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.from, to, subject, body)
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// Notifier tells the employee what happened to their mail, on their
// channel. Implemented by the server package over the chat client.
type Notifier interface {
	PendingAdded(ctx context.Context, channelID string, p *expense.PendingExpense) error
	IngestFailed(ctx context.Context, channelID, filename, reason string) error
}

// Ingestor turns one raw inbound message into pending expenses.
type Ingestor struct {
	service  *expense.Service
	notifier Notifier
}

// NewIngestor creates an Ingestor.
func NewIngestor(service *expense.Service, notifier Notifier) *Ingestor {
	return &Ingestor{service: service, notifier: notifier}
}

// Process parses one raw message and ingests its PDF attachments as
// pending expenses for the verified sender. Mail from unknown or
// unverified addresses is dropped: answering strangers invites
// backscatter.
func (i *Ingestor) Process(ctx context.Context, raw []byte) error {
	msg, err := ParseMessage(raw)
	if err != nil {
		return fmt.Errorf("parsing message: %w", err)
	}
	if msg.From == "" {
		slog.Warn("dropping mail without sender", "subject", msg.Subject)
		return nil
	}

	employee, err := i.service.EmployeeByEmail(msg.From)
	if err != nil {
		return fmt.Errorf("resolving sender %s: %w", msg.From, err)
	}
	if employee == nil {
		slog.Info("dropping mail from unverified sender", "from", msg.From, "subject", msg.Subject)
		return nil
	}

	for _, att := range msg.Attachments {
		if !isPDF(att) {
			slog.Debug("skipping non-PDF attachment", "filename", att.Filename)
			continue
		}

		pending, err := i.service.AddPendingTicket(ctx, employee.UserID, att.Filename, att.Data, "application/pdf")
		if err != nil {
			reason := "could not be read"
			if errors.Is(err, expense.ErrUnsupportedDocument) {
				reason = "is not a supported ticket"
			} else {
				slog.Error("ingesting attachment failed", "filename", att.Filename, "error", err)
			}
			if nerr := i.notifier.IngestFailed(ctx, employee.ChannelID, att.Filename, reason); nerr != nil {
				slog.Warn("could not notify ingest failure", "user_id", employee.UserID, "error", nerr)
			}
			continue
		}

		if err := i.notifier.PendingAdded(ctx, employee.ChannelID, pending); err != nil {
			slog.Warn("could not notify pending expense", "user_id", employee.UserID, "pending_id", pending.ID, "error", err)
		}
	}
	return nil
}

func isPDF(att Attachment) bool {
	if att.ContentType == "application/pdf" {
		return true
	}
	// Mail clients love application/octet-stream; fall back to the name.
	return strings.EqualFold(filepath.Ext(att.Filename), ".pdf")
}
