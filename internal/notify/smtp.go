package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/MrEthical07/userauth"
)

// ErrQueueFull is reported through the logger when a message is dropped.
var ErrQueueFull = errors.New("notify: queue full")

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	QueueSize int
	Templates Templates
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier implements userauth.Notifier over SMTP.
type SMTPNotifier struct {
	dialer    dialer
	from      string
	templates Templates
	logger    *slog.Logger
	now       func() time.Time

	queue     chan Message
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var _ userauth.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier starts the delivery worker. Call Close to drain it.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("notify: smtp host and port required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("notify: from address required")
	}
	return newSMTPNotifier(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg, logger), nil
}

func newSMTPNotifier(d dialer, cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	n := &SMTPNotifier{
		dialer:    d,
		from:      cfg.From,
		templates: cfg.Templates.withDefaults(),
		logger:    logger,
		now:       time.Now,
		queue:     make(chan Message, size),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *SMTPNotifier) NotifyVerification(email, username, token string) {
	n.enqueue(n.templates.verification(email, username, token))
}

func (n *SMTPNotifier) NotifyPasswordReset(email, username, token string) {
	n.enqueue(n.templates.passwordReset(email, username, token))
}

func (n *SMTPNotifier) NotifyPasswordChanged(email, username string) {
	n.enqueue(n.templates.passwordChanged(email, username, n.now()))
}

func (n *SMTPNotifier) enqueue(msg Message) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.logger.Warn("notify: message after close dropped", slog.String("kind", msg.Kind))
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.logger.Error("notify: message dropped", slog.String("kind", msg.Kind), slog.Any("error", ErrQueueFull))
	}
}

func (n *SMTPNotifier) run() {
	defer n.wg.Done()
	for msg := range n.queue {
		m := gomail.NewMessage()
		m.SetHeader("From", n.from)
		m.SetHeader("To", msg.To)
		m.SetHeader("Subject", msg.Subject)
		m.SetBody("text/html", msg.Body)

		if err := n.dialer.DialAndSend(m); err != nil {
			n.logger.Error("notify: smtp send failed", slog.String("kind", msg.Kind), slog.Any("error", err))
			continue
		}
		n.logger.Debug("notify: sent", slog.String("kind", msg.Kind))
	}
}

// Close stops accepting messages and waits for queued ones to be sent.
func (n *SMTPNotifier) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.queue)
		n.mu.Unlock()
		n.wg.Wait()
	})
}
