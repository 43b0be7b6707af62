package smtp

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

// Dialer sends prepared messages. *gomail.Dialer implements it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is one plain text email.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

type Options struct {
	From    string
	Domain  string        // used for Message-ID
	Timeout time.Duration // per attempt
	Retries uint64        // additional attempts after the first one
	Backoff time.Duration // initial retry interval
}

// Client представляет почтовый клиент.
type Client struct {
	dialer Dialer
	opts   Options
	logger *types.Logger
}

// NewClient инициализирует Client.
func NewClient(dialer Dialer, opts Options, logger *types.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	return &Client{
		dialer: dialer,
		opts:   opts,
		logger: logger,
	}
}

// Send delivers msg, retrying with exponential backoff. Any failure is
// reported as errorz.ErrDispatchFailed.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("%w: empty recipient", errorz.ErrDispatchFailed)
	}
	m := c.build(msg)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.Backoff
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		errSend := c.sendOnce(ctx, m)
		if errSend != nil && ctx.Err() != nil {
			return backoff.Permanent(errSend)
		}
		if errSend != nil {
			c.logger.Warnf("failed to send email (to=%s, attempt=%d): %v", msg.To, attempt, errSend)
		}
		return errSend
	}, backoff.WithContext(backoff.WithMaxRetries(policy, c.opts.Retries), ctx))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errorz.ErrDispatchFailed, msg.To, err)
	}

	c.logger.Infof("Email successfully sent (to=%s, subject=%q)", msg.To, msg.Subject)
	return nil
}

// sendOnce bounds one DialAndSend by the attempt timeout. gomail has no
// context support, so a timed out attempt is abandoned, not interrupted.
func (c *Client) sendOnce(ctx context.Context, m *gomail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("Message-ID", generateMessageID(c.opts.Domain))
	m.SetHeader("Date", time.Now().Format(time.RFC1123Z))
	m.SetHeader("From", c.opts.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	for _, a := range msg.Attachments {
		data := a.Data
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		m.Attach(a.Name, settings...)
	}
	return m
}

func generateMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}

// LogClient only logs messages. It stands in for Client when mail delivery
// is disabled.
type LogClient struct {
	logger *types.Logger
}

func NewLogClient(logger *types.Logger) *LogClient {
	return &LogClient{logger: logger}
}

func (c *LogClient) Send(_ context.Context, msg Message) error {
	c.logger.Infof("email delivery disabled, would send (to=%s, subject=%q, attachments=%d)", msg.To, msg.Subject, len(msg.Attachments))
	return nil
}
