package video

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"prism/internal/domain"
)

type captureTransport struct {
	responses  map[string]responseStub
	lastBody   []byte
	lastHeader http.Header
}

type responseStub struct {
	status int
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.lastHeader = req.Header.Clone()
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	if stub, ok := c.responses[req.Method+" "+req.URL.Path]; ok {
		return &http.Response{
			StatusCode: stub.status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(bytes.NewReader(stub.body)),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSON(method, path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[method+" "+path] = responseStub{status: status, body: body}
}

func newTestWan(t *testing.T, transport *captureTransport) *Wan {
	t.Helper()
	client, err := NewWan(Options{
		APIKey:     "test",
		Model:      "wan-test",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("NewWan: %v", err)
	}
	return client
}

func TestWanSubmitPayload(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSON(http.MethodPost, "/api/v1/services/aigc/video-generation/video-synthesis", http.StatusOK, map[string]any{
		"output":     map[string]any{"task_id": "task-1", "task_status": "PENDING"},
		"request_id": "req-1",
	})
	client := newTestWan(t, transport)

	taskID, err := client.Submit(context.Background(), domain.RenderRequest{
		Prompt:         "toast, Camera: close-up",
		NegativePrompt: "blurry",
		DurationS:      5,
		Size:           "1280*720",
		Seed:           12345,
		PromptExtend:   true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if taskID != "task-1" {
		t.Fatalf("taskID = %q", taskID)
	}
	if transport.lastHeader.Get("X-DashScope-Async") != "enable" {
		t.Fatalf("async header missing")
	}
	if transport.lastHeader.Get("Authorization") != "Bearer test" {
		t.Fatalf("authorization header = %q", transport.lastHeader.Get("Authorization"))
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model"] != "wan-test" {
		t.Fatalf("model = %v", payload["model"])
	}
	params := payload["parameters"].(map[string]any)
	if params["size"] != "1280*720" || params["seed"] != float64(12345) || params["duration"] != float64(5) {
		t.Fatalf("unexpected parameters: %v", params)
	}
	if params["watermark"] != false {
		t.Fatalf("watermark = %v, want false", params["watermark"])
	}
	input := payload["input"].(map[string]any)
	if input["negative_prompt"] != "blurry" {
		t.Fatalf("negative_prompt = %v", input["negative_prompt"])
	}
}

func TestWanSubmitErrorBody(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSON(http.MethodPost, "/api/v1/services/aigc/video-generation/video-synthesis", http.StatusBadRequest, map[string]any{
		"code": "InvalidParameter", "message": "size not supported",
	})
	client := newTestWan(t, transport)

	_, err := client.Submit(context.Background(), domain.RenderRequest{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "size not supported") {
		t.Fatalf("error = %v", err)
	}
}

func TestWanPollStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		output map[string]any
		want   Result
	}{
		{name: "running", output: map[string]any{"task_status": "RUNNING"}, want: Result{Status: StatusPending}},
		{name: "succeeded", output: map[string]any{"task_status": "SUCCEEDED", "video_url": "https://x/v.mp4"}, want: Result{Status: StatusSucceeded, VideoURL: "https://x/v.mp4"}},
		{name: "failed", output: map[string]any{"task_status": "FAILED", "message": "content policy"}, want: Result{Status: StatusFailed, Error: "content policy"}},
		{name: "unknown", output: map[string]any{"task_status": "UNKNOWN"}, want: Result{Status: StatusFailed, Error: "task unknown"}},
		{name: "succeeded without url", output: map[string]any{"task_status": "SUCCEEDED"}, want: Result{Status: StatusFailed, Error: "succeeded without video url"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			transport := &captureTransport{responses: map[string]responseStub{}}
			transport.setJSON(http.MethodGet, "/api/v1/tasks/task-9", http.StatusOK, map[string]any{"output": tc.output})
			client := newTestWan(t, transport)

			got, err := client.Poll(context.Background(), "task-9")
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Poll = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSimulatedLifecycle(t *testing.T) {
	sim := NewSimulated(SimulatedOptions{
		PendingPolls: 1,
		FailRender:   func(r domain.RenderRequest) bool { return r.Seed == 2 },
		FailSubmit:   func(r domain.RenderRequest) bool { return r.Seed == 3 },
	})
	ctx := context.Background()

	okID, err := sim.Submit(ctx, domain.RenderRequest{Prompt: "a", Seed: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	badID, _ := sim.Submit(ctx, domain.RenderRequest{Prompt: "b", Seed: 2})
	if _, err := sim.Submit(ctx, domain.RenderRequest{Prompt: "c", Seed: 3}); err == nil {
		t.Fatalf("expected simulated submission failure")
	}

	if res, _ := sim.Poll(ctx, okID); res.Status != StatusPending {
		t.Fatalf("first poll = %+v, want pending", res)
	}
	if res, _ := sim.Poll(ctx, okID); res.Status != StatusSucceeded || !strings.HasSuffix(res.VideoURL, okID+".mp4") {
		t.Fatalf("second poll = %+v", res)
	}
	_, _ = sim.Poll(ctx, badID)
	if res, _ := sim.Poll(ctx, badID); res.Status != StatusFailed {
		t.Fatalf("failing task = %+v", res)
	}
	if _, err := sim.Poll(ctx, "nope"); err != ErrUnknownTask {
		t.Fatalf("unknown task error = %v", err)
	}
	if len(sim.Submitted()) != 2 {
		t.Fatalf("submitted = %d", len(sim.Submitted()))
	}
}
