package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures client IP extraction behavior.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the listener.
	// 0 ignores X-Forwarded-For; 1 takes its rightmost entry; 2 the second
	// from the end, and so on.
	TrustedHops int
}

// ClientIP stores the caller address in the context, ignoring forwarding
// headers.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// clientAddr only honours X-Forwarded-For from private peers and only the
// configured number of hops back. Untrusted forwarding headers are removed so
// nothing downstream reads them.
func clientAddr(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}
	addr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return "0.0.0.0"
	}

	if trustedHops <= 0 || !(ip.IsPrivate() || ip.IsLoopback()) {
		stripForwarded(r)
		return addr
	}

	xf := r.Header.Get("X-Forwarded-For")
	if xf == "" {
		return addr
	}
	parts := strings.Split(xf, ",")
	idx := len(parts) - trustedHops
	if idx < 0 {
		// fewer hops than configured: fail closed
		stripForwarded(r)
		return addr
	}
	if c := strings.TrimSpace(parts[idx]); net.ParseIP(c) != nil {
		return c
	}
	return addr
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
