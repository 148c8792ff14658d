// Package api defines the transport-neutral request/response contract shared
// by every transport and the pipeline.
//
// A [Request] and a [Response] are built once per interaction by the
// transport that received it: natively for HTTP and HTTPS, and synthesized
// from socket events for the channel transport. Pipeline code only ever sees
// these types, so route handlers do not know which transport delivered a
// request.
//
// Core types:
//   - [Request]: method, URL, decoded body, identity, and request context
//   - [Response]: status-carrying writer with one implementation per transport
//   - [Dispatcher]: anything that runs a request/response pair through the pipeline
//   - [APIError]: structured error with type, code, param, and message
//   - [TransportStartError]: a listener failed to bind or attach
package api
