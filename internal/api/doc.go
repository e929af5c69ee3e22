// Package api implements the operator HTTP API and WebSocket feed of the
// observatory controller.
//
// This package provides:
//   - read-only endpoints for the control loop state, the latest status
//     report, a live safety verdict, the observation list, sensor daemons
//     and the status history
//   - control endpoints to interrupt (park and exit) or stop the loop
//   - the audit trail of logins and control commands
//   - a WebSocket hub relaying state changes and status reports
//   - the Prometheus /metrics endpoint
//
// # Security
//
// Operators listed in security.operators log in at POST /api/v1/auth/login
// and receive an HS256 bearer token (see package auth). WebSocket tickets
// and the audit trail need any valid token; the control endpoints need the
// operator role.
// WebSocket connections authenticate with single-use tickets so the token
// never appears in a URL.
//
// Read endpoints are open: they expose nothing an allsky camera would not.
package api
