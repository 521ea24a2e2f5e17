// Package server implements the WebSocket transport for the Pulse realtime
// core.
//
// The implementation is organized into specialized files for the hub, clients,
// routing, handlers, and the emit endpoint's authentication to keep the
// codebase maintainable and testable as the project grows.
package server
