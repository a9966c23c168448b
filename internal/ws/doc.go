// Package ws provides the real-time viewer stream.
//
// The process viewer and memory viewer hold one WebSocket connection
// each. Lifecycle events arrive as they happen and a full snapshot is
// pushed every second so a viewer that missed events converges anyway.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - snapshot: Request an immediate full snapshot
//
// Message Types (Server → Client):
//   - system: Connection greeting with an initial snapshot
//   - event: One kernel lifecycle event
//   - snapshot: Full kernel snapshot
//   - pong: Keep-alive reply
//   - error: Unrecognized request
//
// Example Usage:
//
//	handler := ws.NewHandler(kernel, logger, metrics)
//	router.GET("/stream", handler.HandleConnection)
package ws
