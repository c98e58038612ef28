package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"unicode"
)

type clientContextKey struct{}

// maxClientIDLen bounds caller supplied identifiers stored in admission tables.
const maxClientIDLen = 128

// ClientIdentity resolves the admission identity of a request: the
// X-Client-ID header when it is well formed, otherwise the client IP.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeClientID(r.Header.Get("X-Client-ID"))
		if id == "" {
			id = clientIP(r)
		}
		ctx := context.WithValue(r.Context(), clientContextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIDFromContext returns the identity set by ClientIdentity.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientContextKey{}).(string); ok {
		return v
	}
	return ""
}

func sanitizeClientID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxClientIDLen {
		return ""
	}
	for _, r := range id {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("-_.:@", r) {
			return ""
		}
	}
	return id
}

// clientIP takes the first parseable X-Forwarded-For entry, then the remote host.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for part := range strings.SplitSeq(xf, ",") {
			if ip := strings.TrimSpace(part); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
