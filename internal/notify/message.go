package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Templates controls the wording and links of outgoing mail.
type Templates struct {
	AppName string
	// BaseURL prefixes the verification and reset links.
	BaseURL        string
	VerifyPath     string
	ResetPath      string
	VerifyValidFor time.Duration
	ResetValidFor  time.Duration
}

func (t Templates) withDefaults() Templates {
	if t.AppName == "" {
		t.AppName = "user-service"
	}
	if t.BaseURL == "" {
		t.BaseURL = "http://localhost:8082"
	}
	if t.VerifyPath == "" {
		t.VerifyPath = "/api/auth/verify-email"
	}
	if t.ResetPath == "" {
		t.ResetPath = "/api/auth/reset-password"
	}
	if t.VerifyValidFor <= 0 {
		t.VerifyValidFor = 24 * time.Hour
	}
	if t.ResetValidFor <= 0 {
		t.ResetValidFor = time.Hour
	}
	return t
}

// Message is one rendered email.
type Message struct {
	Kind    string
	To      string
	Subject string
	Body    string
}

func (t Templates) link(path, token string) string {
	return strings.TrimRight(t.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (t Templates) verification(email, username, token string) Message {
	return Message{
		Kind:    "verification",
		To:      email,
		Subject: fmt.Sprintf("Verify your email - %s", t.AppName),
		Body: fmt.Sprintf(`<p>Hello %s,</p>
<p>Thank you for registering. Please verify your email by opening the link below:</p>
<p><a href="%[2]s">%[2]s</a></p>
<p>This link expires in %[3]s.</p>`, username, t.link(t.VerifyPath, token), humanize(t.VerifyValidFor)),
	}
}

func (t Templates) passwordReset(email, username, token string) Message {
	return Message{
		Kind:    "password_reset",
		To:      email,
		Subject: fmt.Sprintf("Reset your password - %s", t.AppName),
		Body: fmt.Sprintf(`<p>Hello %s,</p>
<p>We received a request to reset your password. Open the link below to choose a new one:</p>
<p><a href="%[2]s">%[2]s</a></p>
<p>This link expires in %[3]s. If you did not ask for this, ignore this email.</p>`, username, t.link(t.ResetPath, token), humanize(t.ResetValidFor)),
	}
}

func (t Templates) passwordChanged(email, username string, at time.Time) Message {
	return Message{
		Kind:    "password_changed",
		To:      email,
		Subject: fmt.Sprintf("Your password was changed - %s", t.AppName),
		Body: fmt.Sprintf(`<p>Hello %s,</p>
<p>Your password was changed at %s.</p>
<p>If you did not make this change, contact support immediately.</p>`, username, at.UTC().Format(time.RFC1123)),
	}
}

func humanize(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		n := int(d / (24 * time.Hour))
		if n == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", n)
	case d%time.Hour == 0:
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	default:
		return d.String()
	}
}
