// Package notify delivers account emails for the engine's Notifier hook.
//
// SMTPNotifier sends through gomail on a background worker so engine calls never
// wait on the network. LogNotifier writes the same messages to a slog.Logger and
// is meant for development.
package notify
