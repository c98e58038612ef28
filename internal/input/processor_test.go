package input

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestProcessRedactsPII(t *testing.T) {
	raw := "Email me at jane.doe@example.com or call 555-123-4567, ssn 123-45-6789"
	res := NewProcessor().Process(raw, "")

	for _, leaked := range []string{"jane.doe@example.com", "555-123-4567", "123-45-6789"} {
		if strings.Contains(res.Redacted, leaked) {
			t.Fatalf("redacted text still contains %q: %s", leaked, res.Redacted)
		}
	}
	for _, token := range []string{"[EMAIL]", "[PHONE]", "[SSN]"} {
		if !strings.Contains(res.Redacted, token) {
			t.Fatalf("redacted text missing %s: %s", token, res.Redacted)
		}
	}
	if strings.Join(res.PIIFlags, ",") != "email,phone,ssn" {
		t.Fatalf("PIIFlags = %v", res.PIIFlags)
	}

	sum := sha256.Sum256([]byte(raw))
	if res.Hash != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash must fingerprint the original text")
	}
}

func TestProcessCleanInput(t *testing.T) {
	res := NewProcessor().Process("  Show a healthy breakfast with avocado toast ", "")
	if len(res.PIIFlags) != 0 {
		t.Fatalf("unexpected flags: %v", res.PIIFlags)
	}
	if res.Redacted != "Show a healthy breakfast with avocado toast" {
		t.Fatalf("Redacted = %q", res.Redacted)
	}
	if res.Locale != "en-US" {
		t.Fatalf("Locale = %q, want en-US", res.Locale)
	}
}

func TestProcessLocale(t *testing.T) {
	tests := []struct {
		name      string
		supported []language.Tag
		raw       string
		want      string
	}{
		{name: "any tag", raw: "id-ID", want: "id-ID"},
		{name: "accept header", raw: "fr-CH, fr;q=0.9", want: "fr-CH"},
		{name: "garbage", raw: "!!", want: "en-US"},
		{name: "matched to supported", supported: []language.Tag{language.Indonesian}, raw: "id-ID", want: "id"},
		{name: "unsupported falls back", supported: []language.Tag{language.Indonesian}, raw: "ja-JP", want: "en-US"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewProcessor(tc.supported...).Process("hello", tc.raw).Locale
			if got != tc.want {
				t.Fatalf("Locale = %q, want %q", got, tc.want)
			}
		})
	}
}
