// Package api defines the wire types of the FedFlow node HTTP API.
//
// # API Overview
//
// A node exposes the controller protocol under /api:
//
//	GET  /api/status   poll state, availability and progress
//	POST /api/setup    deliver identity and participant list (once)
//	POST /api/data     deliver an inbound payload
//	GET  /api/data     take the pending outbound payload (204 when none)
//	GET  /api/result   the participant's result once finished
//	GET  /api/watch    websocket stream of status snapshots
//
// Payload bodies on /api/data are opaque bytes in the session's codec.
// Every other body is JSON. Errors use the Response envelope with
// success=false and an ErrorInfo.
//
// The handlers live in api/handlers; the relay's HTTP client in
// transport speaks the same types.
package api
