// Package http implements the HTTP and HTTPS transports.
//
// A [Listener] binds one socket (TLS-wrapped for HTTPS) and serves every
// request through the shared pipeline. Native requests already have the
// request/response shape the pipeline expects, so the bridge only copies
// them into an api.Request and wraps the writer in a one-shot [Response].
//
// A started Listener is also a transport.Carrier: the channel transport
// mounts its upgrade handler on it.
package http
