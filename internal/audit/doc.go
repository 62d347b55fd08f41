// Package audit relays authentication events to a Sink without blocking the
// request path.
//
// Sinks: NoOpSink, ChannelSink (tests), JSONWriterSink (one object per line) and
// SlogSink (structured log records). The Dispatcher buffers events and either
// drops or blocks when the buffer is full.
package audit
