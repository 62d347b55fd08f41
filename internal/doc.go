// Package internal contains helpers private to userauth: opaque token generation
// and hashing shared by the refresh and ephemeral token stores.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - httpapi: gin routes exposing the Engine over HTTP/JSON
//   - notify: Notifier implementations (SMTP, log)
//   - observability: slog logger construction and Sentry reporting
//   - rate: Redis fixed-window throttle for token requests
//   - settings: layered service configuration
//   - sqlstore: database/sql credential and refresh-token stores
//   - stores: ephemeral single-use token stores
package internal
