// Package syncauth authorizes clients of the realtime sync channel.
//
// A sync token grants access to the store ids listed in its resources claim.
// The package exposes that check twice: as POST /sync/authorize for an external
// sync worker, and as the first-message handshake of the GET /sync WebSocket.
package syncauth
