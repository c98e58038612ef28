package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		fallback string
		want     string
	}{
		{
			name: "x-locale overrides",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "id-ID")
				r.Header.Set("Accept-Language", "en-US")
			},
			want: "id-ID",
		},
		{
			name: "accept-language used",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "en-GB,en;q=0.9")
			},
			want: "en-GB,en;q=0.9",
		},
		{
			name:     "configured fallback",
			fallback: "fr-FR",
			want:     "fr-FR",
		},
		{
			name: "empty without fallback",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.setup != nil {
				tc.setup(req)
			}
			if got := detectLocale(req, tc.fallback); got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocaleMiddleware(t *testing.T) {
	var got string
	h := Locale("en-US")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Locale", "de-DE")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "de-DE" {
		t.Fatalf("locale = %q, want de-DE", got)
	}
	if v := LocaleFromContext(context.Background()); v != "" {
		t.Fatalf("empty context locale = %q", v)
	}
}
