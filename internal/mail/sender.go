package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/config"
	"github.com/eris-support/support-desk/internal/observability"
)

// ErrNotConfigured is returned when relay credentials are missing.
var ErrNotConfigured = errors.New("smtp relay not configured")

// implicitTLSPort is the SMTPS submission port; any other port uses STARTTLS.
const implicitTLSPort = 465

type smtpClient interface {
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Sender submits plain-text replies through the configured SMTP relay.
type Sender struct {
	cfg     config.MailConfig
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	dial    func(ctx context.Context, cfg config.MailConfig) (smtpClient, error)
}

// NewSender builds a Sender. metrics may be nil.
func NewSender(cfg config.MailConfig, logger *zap.Logger, metrics *observability.Metrics) *Sender {
	return &Sender{
		cfg:     cfg,
		logger:  logger.Named("mail.sender"),
		metrics: metrics,
		now:     time.Now,
		dial:    dialSMTP,
	}
}

// Send delivers body to the recipient. When ticketID is set the subject is
// tagged with it so customer replies thread back onto the ticket.
func (s *Sender) Send(ctx context.Context, to, subject, body string, ticketID *int64) error {
	if !s.cfg.SMTPConfigured() {
		return ErrNotConfigured
	}
	to = normalizeAddress(to)
	if to == "" {
		return errors.New("no recipient specified")
	}
	if ticketID != nil {
		subject = TagSubject(subject, *ticketID)
	}

	err := s.send(ctx, to, subject, body)
	s.metrics.RecordOutbound(err)
	if err != nil {
		return err
	}
	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func (s *Sender) send(ctx context.Context, to, subject, body string) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}
	msg, err := composeMessage(from, to, subject, body, s.now())
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	client, err := s.dial(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	// net/smtp has no context support; closing unblocks a stalled exchange.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if err := s.exchange(client, from, to, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp session interrupted: %w", ctxErr)
		}
		return err
	}
	return nil
}

func (s *Sender) exchange(client smtpClient, from, to string, msg []byte) error {
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to quit smtp session: %w", err)
	}
	return nil
}

func composeMessage(from, to, subject, body string, date time.Time) ([]byte, error) {
	var h gomail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*gomail.Address{{Address: from}})
	h.SetAddressList("To", []*gomail.Address{{Address: to}})
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func dialSMTP(ctx context.Context, cfg config.MailConfig) (smtpClient, error) {
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
	tlsConfig := &tls.Config{ServerName: cfg.SMTPHost}
	dialer := &net.Dialer{Timeout: cfg.DialTimeout()}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	deadline := time.Now().Add(cfg.SessionTimeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set smtp deadline: %w", err)
	}

	if cfg.SMTPPort == implicitTLSPort {
		conn = tls.Client(conn, tlsConfig)
	}
	client, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	if cfg.SMTPPort != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, errors.New("smtp server does not support STARTTLS")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start tls: %w", err)
		}
	}
	return client, nil
}

// normalizeAddress strips a display name from a recipient.
func normalizeAddress(addr string) string {
	return strings.TrimSpace(bareAddress(addr))
}
