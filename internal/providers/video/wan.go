package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prism/internal/domain"
	"prism/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("wan: api key is required")

// Options configures the DashScope Wan client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Wan performs HTTP calls to the DashScope asynchronous video-synthesis API.
type Wan struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type synthesisRequest struct {
	Model      string          `json:"model"`
	Input      synthesisInput  `json:"input"`
	Parameters synthesisParams `json:"parameters"`
}

type synthesisInput struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

type synthesisParams struct {
	Size         string `json:"size,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	Seed         *int   `json:"seed,omitempty"`
	PromptExtend bool   `json:"prompt_extend"`
	Watermark    bool   `json:"watermark"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Code       string `json:"code"`
		Message    string `json:"message"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewWan constructs a client with sane defaults and injected dependencies.
func NewWan(opts Options) (*Wan, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "wan2.6-t2v"
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.NopLogger()
		logger = &l
	}
	return &Wan{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Wan) Model() string {
	return c.model
}

// Submit creates an asynchronous synthesis task and returns its id.
func (c *Wan) Submit(ctx context.Context, req domain.RenderRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("wan: prompt is required")
	}
	payload := synthesisRequest{
		Model: c.model,
		Input: synthesisInput{Prompt: prompt, NegativePrompt: strings.TrimSpace(req.NegativePrompt)},
		Parameters: synthesisParams{
			Size:         req.Size,
			Duration:     req.DurationS,
			PromptExtend: req.PromptExtend,
			Watermark:    req.Watermark,
		},
	}
	if req.Seed > 0 {
		seed := req.Seed
		payload.Parameters.Seed = &seed
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("wan: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/services/aigc/video-generation/video-synthesis", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("wan: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-DashScope-Async", "enable")

	decoded, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	if decoded.Output.TaskID == "" {
		return "", errors.New("wan: empty task id")
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", decoded.RequestID).
		Str("task_id", decoded.Output.TaskID).
		Msg("wan: task submitted")
	return decoded.Output.TaskID, nil
}

// Poll fetches the task once and maps the remote status.
func (c *Wan) Poll(ctx context.Context, taskID string) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return Result{}, fmt.Errorf("wan: build poll request: %w", err)
	}
	decoded, err := c.do(httpReq)
	if err != nil {
		return Result{}, err
	}
	res := Result{Status: mapTaskStatus(decoded.Output.TaskStatus), VideoURL: decoded.Output.VideoURL}
	if res.Status == StatusFailed {
		res.Error = firstNonEmpty(decoded.Output.Message, decoded.Output.Code, "task "+strings.ToLower(decoded.Output.TaskStatus))
	}
	if res.Status == StatusSucceeded && res.VideoURL == "" {
		res = Result{Status: StatusFailed, Error: "succeeded without video url"}
	}
	return res, nil
}

func (c *Wan) do(httpReq *http.Request) (taskResponse, error) {
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return taskResponse{}, fmt.Errorf("wan: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return taskResponse{}, fmt.Errorf("wan: read response: %w", err)
	}
	var decoded taskResponse
	jsonErr := json.Unmarshal(raw, &decoded)
	if resp.StatusCode >= 300 {
		if jsonErr == nil && decoded.Message != "" {
			return taskResponse{}, fmt.Errorf("wan: %s (%s)", decoded.Message, decoded.Code)
		}
		return taskResponse{}, fmt.Errorf("wan: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if jsonErr != nil {
		return taskResponse{}, fmt.Errorf("wan: decode response: %w", jsonErr)
	}
	if decoded.Code != "" {
		return taskResponse{}, fmt.Errorf("wan: %s (%s)", decoded.Message, decoded.Code)
	}
	return decoded, nil
}

func mapTaskStatus(raw string) TaskStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "RUNNING":
		return StatusPending
	case "SUCCEEDED":
		return StatusSucceeded
	default:
		return StatusFailed
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ Renderer = (*Wan)(nil)
