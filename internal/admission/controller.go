package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"prism/internal/domain"
	"prism/internal/infra"
	"prism/internal/observability"
)

const (
	ReasonRateLimited        = "rate_limit_exceeded"
	ReasonConcurrencyLimited = "concurrency_limit_exceeded"

	anonymousClient = "anonymous"
)

// Options configures a Controller.
type Options struct {
	Limit            int
	Window           time.Duration
	MaxConcurrent    int
	ConcurrencyRetry time.Duration
	Allowlist        []string
	Logger           infra.Logger
	Metrics          *observability.Metrics
	Now              func() time.Time
}

// RateDecision is the result of a sliding-window check.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// ConcurrencyDecision is the result of a concurrency check.
type ConcurrencyDecision struct {
	Allowed bool
	Current int
	Max     int
}

// Controller gates job creation by request rate and in-flight job count.
type Controller struct {
	store     CounterStore
	opts      Options
	allowlist map[string]struct{}
}

// NewController builds a controller over store. Zero limits fall back to
// 10 requests per minute and 5 concurrent jobs.
func NewController(store CounterStore, opts Options) *Controller {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.ConcurrencyRetry <= 0 {
		opts.ConcurrencyRetry = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	allow := make(map[string]struct{}, len(opts.Allowlist))
	for _, id := range opts.Allowlist {
		allow[id] = struct{}{}
	}
	return &Controller{store: store, opts: opts, allowlist: allow}
}

// Allowlisted reports whether clientID bypasses admission entirely.
func (c *Controller) Allowlisted(clientID string) bool {
	_, ok := c.allowlist[normalizeClient(clientID)]
	return ok
}

// CheckRate records the request in the client's sliding window when it fits.
func (c *Controller) CheckRate(ctx context.Context, clientID string) (RateDecision, error) {
	clientID = normalizeClient(clientID)
	now := c.opts.Now().UTC()
	if c.Allowlisted(clientID) {
		return RateDecision{Allowed: true, Remaining: c.opts.Limit, ResetAt: now.Add(c.opts.Window)}, nil
	}
	res, err := c.store.AdmitWindow(ctx, clientID, now, c.opts.Window, c.opts.Limit)
	if err != nil {
		return RateDecision{}, fmt.Errorf("admission: rate check for %s: %w", clientID, err)
	}
	resetAt := now.Add(c.opts.Window)
	if !res.Oldest.IsZero() {
		resetAt = res.Oldest.Add(c.opts.Window)
	}
	remaining := c.opts.Limit - res.Count
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{Allowed: res.Accepted, Remaining: remaining, ResetAt: resetAt}, nil
}

// CheckConcurrency reports the client's in-flight count without changing it.
func (c *Controller) CheckConcurrency(ctx context.Context, clientID string) (ConcurrencyDecision, error) {
	clientID = normalizeClient(clientID)
	if c.Allowlisted(clientID) {
		return ConcurrencyDecision{Allowed: true, Max: c.opts.MaxConcurrent}, nil
	}
	cur, err := c.store.Concurrency(ctx, clientID)
	if err != nil {
		return ConcurrencyDecision{}, fmt.Errorf("admission: concurrency check for %s: %w", clientID, err)
	}
	return ConcurrencyDecision{Allowed: cur < c.opts.MaxConcurrent, Current: cur, Max: c.opts.MaxConcurrent}, nil
}

// IncrementConcurrency unconditionally bumps the client's counter.
func (c *Controller) IncrementConcurrency(ctx context.Context, clientID string) error {
	clientID = normalizeClient(clientID)
	if c.Allowlisted(clientID) {
		return nil
	}
	_, err := c.store.Increment(ctx, clientID)
	return err
}

// DecrementConcurrency lowers the client's counter, flooring at zero.
func (c *Controller) DecrementConcurrency(ctx context.Context, clientID string) error {
	clientID = normalizeClient(clientID)
	if c.Allowlisted(clientID) {
		return nil
	}
	_, err := c.store.Decrement(ctx, clientID)
	return err
}

// Admit runs the rate check and atomically claims a concurrency slot. On
// success holder names the counter that now carries the slot (empty for
// allowlisted clients) and release must be called exactly when the workflow
// ends; calling it more than once is harmless. Rejections are
// *domain.AdmissionError.
func (c *Controller) Admit(ctx context.Context, clientID string) (holder string, release func(), err error) {
	clientID = normalizeClient(clientID)
	if c.Allowlisted(clientID) {
		return "", func() {}, nil
	}

	rate, err := c.CheckRate(ctx, clientID)
	if err != nil {
		return "", nil, err
	}
	if !rate.Allowed {
		c.opts.Metrics.AdmissionRejected(ReasonRateLimited)
		c.opts.Logger.Info().Str("client_id", clientID).Time("reset_at", rate.ResetAt).Msg("admission: rate limit exceeded")
		return "", nil, &domain.AdmissionError{
			Reason:     ReasonRateLimited,
			RetryAfter: rate.ResetAt,
			Limit:      c.opts.Limit,
			Current:    c.opts.Limit - rate.Remaining,
		}
	}

	cur, ok, err := c.store.AcquireSlot(ctx, clientID, c.opts.MaxConcurrent)
	if err != nil {
		return "", nil, fmt.Errorf("admission: acquire slot for %s: %w", clientID, err)
	}
	if !ok {
		c.opts.Metrics.AdmissionRejected(ReasonConcurrencyLimited)
		c.opts.Logger.Info().Str("client_id", clientID).Int("current", cur).Msg("admission: concurrency limit exceeded")
		return "", nil, &domain.AdmissionError{
			Reason:     ReasonConcurrencyLimited,
			RetryAfter: c.opts.Now().UTC().Add(c.opts.ConcurrencyRetry),
			Limit:      c.opts.MaxConcurrent,
			Current:    cur,
		}
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if _, err := c.store.Decrement(rctx, clientID); err != nil {
				c.opts.Logger.Error().Err(err).Str("client_id", clientID).Msg("admission: release slot failed")
			}
		})
	}
	return clientID, release, nil
}

func normalizeClient(clientID string) string {
	if clientID == "" {
		return anonymousClient
	}
	return clientID
}
