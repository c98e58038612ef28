package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prism/internal/domain"
	"prism/internal/providers/genai"
)

func TestKeywords(t *testing.T) {
	got := Keywords("Show a healthy breakfast with avocado toast, healthy!")
	want := []string{"healthy", "breakfast", "avocado", "toast"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Keywords = %v, want %v", got, want)
	}
}

func TestFixedInterpretSizesByQuality(t *testing.T) {
	tests := []struct {
		mode  domain.QualityMode
		shots int
	}{
		{domain.QualityFast, 3},
		{domain.QualityBalanced, 4},
		{domain.QualityHigh, 4},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			ir, err := NewFixed().Interpret(context.Background(), "Show a healthy breakfast with avocado toast", tc.mode)
			if err != nil {
				t.Fatalf("Interpret: %v", err)
			}
			if len(ir.Shots) != tc.shots {
				t.Fatalf("shots = %d, want %d", len(ir.Shots), tc.shots)
			}
			if ir.Script == "" || !strings.Contains(ir.Script, "[Scene 1]") {
				t.Fatalf("script missing: %q", ir.Script)
			}
		})
	}
}

func TestFixedInterpretRejectsEmpty(t *testing.T) {
	if _, err := NewFixed().Interpret(context.Background(), "   ", domain.QualityBalanced); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func newGeminiServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
			}},
		})
	}))
}

func TestGeminiInterpretNormalizes(t *testing.T) {
	srv := newGeminiServer(t, `{"shots":[{"visual_prompt":"toast on a plate"}]}`)
	defer srv.Close()
	client, err := genai.NewClient(genai.Options{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ir, err := NewGemini(client).Interpret(context.Background(), "avocado toast breakfast", domain.QualityBalanced)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if ir.Topic != "avocado toast breakfast" || ir.Shots[0].DurationS != 5 {
		t.Fatalf("IR not normalized: %+v", ir)
	}
	if len(ir.Tags) != 3 {
		t.Fatalf("tags = %v", ir.Tags)
	}
}

func TestGeminiInterpretRejectsEmptyShots(t *testing.T) {
	srv := newGeminiServer(t, `{"title":"x","shots":[]}`)
	defer srv.Close()
	client, _ := genai.NewClient(genai.Options{APIKey: "k", BaseURL: srv.URL})

	_, err := NewGemini(client).Interpret(context.Background(), "x", domain.QualityFast)
	if !errors.Is(err, ErrEmptyIR) {
		t.Fatalf("error = %v, want ErrEmptyIR", err)
	}
}
