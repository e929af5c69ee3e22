// Package auth authenticates operators of the observatory API.
//
// Operators are listed in the configuration with an Argon2id password hash
// and a role. A successful login yields a short-lived HS256 token carrying
// the operator's name and role:
//   - viewer: live status over WebSocket and the audit trail
//   - operator: everything a viewer can do, plus interrupt and stop
//
// Hashes are produced offline with `observatory hash-password`.
package auth
