// Package transport defines the listener contract shared by the HTTP,
// HTTPS, and channel transports, plus helpers they have in common.
//
// Each transport turns its native traffic into api.Request / api.Response
// pairs and dispatches them into the shared pipeline. HTTP and HTTPS are
// implemented by pkg/transport/http; the bidirectional channel, which
// mounts itself on a started HTTP(S) [Carrier], by pkg/transport/channel.
//
// Errors answered before a request reaches the pipeline (oversized bodies,
// failed upgrades) use the JSON error shape written by [WriteErrorResponse].
package transport
