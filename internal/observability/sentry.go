package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter sends errors to Sentry. A nil Reporter, or one built with an empty
// DSN, discards everything.
type Reporter struct {
	hub *sentry.Hub
}

type SentryOptions struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	// BeforeSend may inspect or drop events.
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

func NewReporter(opts SentryOptions) (*Reporter, error) {
	if opts.DSN == "" {
		return &Reporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		AttachStacktrace: true,
		TracesSampleRate: opts.TracesSampleRate,
		BeforeSend:       opts.BeforeSend,
	})
	if err != nil {
		return nil, err
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// CaptureError reports err with tags attached to a fresh scope.
func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic value.
func (r *Reporter) CapturePanic(value any, tags map[string]string) {
	if !r.Enabled() {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(sentry.LevelFatal)
		r.hub.Recover(value)
	})
}

// Flush waits up to timeout for queued events.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
