package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Attempts is the number of delivery tries for one send.
	Attempts int
}

type SMTPNotifier struct {
	cfg     SMTPConfig
	log     *slog.Logger
	deliver func(ctx context.Context, m *mail.Msg) error
	backoff func(attempt int) time.Duration
}

func NewSMTPNotifier(cfg SMTPConfig, log *slog.Logger) *SMTPNotifier {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	n := &SMTPNotifier{
		cfg:     cfg,
		log:     log.With(slog.String("component", "notifier.smtp"), slog.String("host", cfg.Host)),
		backoff: ExponentialBackoff,
	}
	n.deliver = n.dialAndSend
	return n
}

func (n *SMTPNotifier) buildMessage(in SendAPKLinkInput) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(in.Recipients...); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	m.Subject(APKSubject)
	m.SetBodyString(mail.TypeTextPlain, APKBody(in.Link))
	return m, nil
}

func (n *SMTPNotifier) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(10 * time.Second),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	return mail.NewClient(n.cfg.Host, opts...)
}

func (n *SMTPNotifier) SendAPKLink(ctx context.Context, in SendAPKLinkInput) error {
	if len(in.Recipients) == 0 {
		return ErrNoRecipients
	}

	m, err := n.buildMessage(in)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err = n.deliver(ctx, m)
		if err == nil {
			break
		}
		if attempt+1 >= n.cfg.Attempts || ctx.Err() != nil {
			return fmt.Errorf("smtp send after %d attempts: %w", attempt+1, err)
		}

		delay := n.backoff(attempt)
		n.log.WarnContext(ctx, "smtp send failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		if werr := sleepCtx(ctx, delay); werr != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
	}

	n.log.InfoContext(ctx, "apk link mailed", "recipients", len(in.Recipients))
	return nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, m *mail.Msg) error {
	c, err := n.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return c.DialAndSendWithContext(ctx, m)
}
