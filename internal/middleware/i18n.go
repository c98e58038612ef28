package middleware

import (
	"context"
	"net/http"
	"strings"
)

type localeContextKey struct{}

// LocaleKey stores the caller's preferred locale tag.
var LocaleKey = localeContextKey{}

// Locale records the preferred locale from X-Locale or Accept-Language.
// The tag is kept raw; the input processor canonicalises it.
func Locale(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), LocaleKey, detectLocale(r, fallback))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("Accept-Language")); v != "" {
		return v
	}
	return fallback
}

// LocaleFromContext returns the locale recorded by Locale, or "".
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return ""
}
