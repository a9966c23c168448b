// Package main is the entry point for the MiniMind OS server.
//
// The server hosts a simulated kernel (process manager, round-robin
// scheduler with priorities, first-fit memory manager, tick clock)
// plus the collaborator services around it: a sandboxed filesystem,
// parental control, and the kid app launcher.
//
// The UI viewers talk to it over REST and a WebSocket event stream.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Default configuration
//	./server
//
//	# Development mode (colored logs, debug level)
//	./server -dev -port 8000 -data ./data
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
