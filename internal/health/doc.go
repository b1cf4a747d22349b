// Package health has liveness and readiness checks for the token API and the
// HTTP handlers that expose them.
//
// Checks compose with [All] and [Any]. [Ping] checks the token database with a
// short deadline. [ShutdownGate] fails readiness while the process drains.
package health
