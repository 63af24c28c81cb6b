// Package cli provides the interactive otpauth command-line client.
//
// It wires configuration and the HTTP API client into a small REPL that walks
// through the account lifecycle:
//   - signup, then verify with the emailed one-time code
//   - login / logout
//   - whoami to show the user behind the current session cookie
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
