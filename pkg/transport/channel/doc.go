// Package channel implements the bidirectional channel transport over
// WebSocket.
//
// The channel does not bind a socket of its own. Start mounts an upgrade
// handler on a started HTTP or HTTPS listener (a transport.Carrier) and
// fails with ErrNoCarrier when neither has started.
//
// Every channel event becomes a fresh api.Request / Response pair:
//
//   - a new connection dispatches URL "connect" with no body;
//   - each inbound frame {"event": name, "data": payload, "id": id}
//     dispatches URL name with payload as the body;
//   - a closed connection dispatches URL "disconnect".
//
// All synthesized requests use method SOCKET. State that lives as long as
// the connection (ID, handshake identity, handshake headers) is kept on the
// [Conn], reachable through [FromContext].
//
// A channel [Response] emits one frame per Send and never closes the
// connection. Object payloads lacking a "status" field are tagged with
// the status set on the response.
package channel
