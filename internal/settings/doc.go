// Package settings loads userauthd configuration.
//
// Sources are layered: built-in defaults, then an optional YAML file, then
// .env files (which never override variables already set), then USERAUTH_*
// environment variables. AuthConfig converts the result to a userauth.Config.
package settings
