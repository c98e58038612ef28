// Package video submits render tasks to a text-to-video service and polls them.
package video

import (
	"context"

	"prism/internal/domain"
)

// TaskStatus is the normalized renderer task state.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
)

// Result is one poll observation of a render task.
type Result struct {
	Status   TaskStatus
	VideoURL string
	Error    string
}

// Terminal reports whether polling can stop.
func (r Result) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// Renderer is the asynchronous render service contract.
type Renderer interface {
	Submit(ctx context.Context, req domain.RenderRequest) (taskID string, err error)
	Poll(ctx context.Context, taskID string) (Result, error)
}
