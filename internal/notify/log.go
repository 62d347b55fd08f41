package notify

import (
	"log/slog"
	"time"

	"github.com/MrEthical07/userauth"
)

// LogNotifier writes each message to a logger instead of sending it.
type LogNotifier struct {
	logger    *slog.Logger
	templates Templates
}

var _ userauth.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger, templates Templates) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger, templates: templates.withDefaults()}
}

func (n *LogNotifier) NotifyVerification(email, username, token string) {
	n.write(n.templates.verification(email, username, token))
}

func (n *LogNotifier) NotifyPasswordReset(email, username, token string) {
	n.write(n.templates.passwordReset(email, username, token))
}

func (n *LogNotifier) NotifyPasswordChanged(email, username string) {
	n.write(n.templates.passwordChanged(email, username, time.Now()))
}

func (n *LogNotifier) write(msg Message) {
	n.logger.Info("email",
		slog.String("kind", msg.Kind),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
}
