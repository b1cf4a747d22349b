// Package httpmw provides HTTP middleware for the token API listener.
//
// httpserver.NewHandler composes them outermost first: API headers, request
// ID, client IP extraction, rate limiting, OTEL tracing, metrics, structured
// logging, panic recovery, then the chi router. Each one is independent and
// can be tested or dropped on its own. Token values travel in the query
// string, so url.query is never logged.
package httpmw
