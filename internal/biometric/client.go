// Package biometric talks to the face-recognition SaaS and tracks whether it
// is ready to serve face verification.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"facefeed/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrNotConfigured = errors.New("biometric provider is not configured")
	// ErrUnauthorized means the provider rejected our credentials. Retrying
	// will not help.
	ErrUnauthorized = errors.New("biometric provider rejected credentials")
)

// Client is the subset of the provider API the server needs. Enrollment and
// recognition run in the browser; the server only checks reachability and
// removes facial ids.
type Client interface {
	Ping(ctx context.Context) error
	DeleteFace(ctx context.Context, faceID string) error
}

// HTTPClient is the Client over the provider's REST API.
type HTTPClient struct {
	baseURL string
	appID   string
	apiKey  string
	timeout time.Duration
}

// NewHTTPClient returns an HTTPClient, or nil when appID or apiKey is empty.
func NewHTTPClient(baseURL, appID, apiKey string, timeout time.Duration) *HTTPClient {
	if appID == "" || apiKey == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		apiKey:  apiKey,
		timeout: timeout,
	}
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", fiber.MethodGet, "/status")
	return err
}

// DeleteFace removes a facial id. An id the provider does not know is
// treated as already deleted.
func (c *HTTPClient) DeleteFace(ctx context.Context, faceID string) error {
	if faceID == "" {
		return nil
	}
	status, err := c.do(ctx, "delete_face", fiber.MethodGet, "/deletefacialid?fid="+url.QueryEscape(faceID))
	if status == fiber.StatusNotFound {
		return nil
	}
	return err
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string) (int, error) {
	_, span := observability.StartClientSpan(ctx, "biometric", op)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	agent.Set("x-app-id", c.appID)
	agent.Set("x-api-key", c.apiKey)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(c.timeout)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return 0, err
	}

	status, _, errs := agent.Bytes()
	if len(errs) > 0 {
		span.SetStatus(codes.Error, errs[0].Error())
		return 0, fmt.Errorf("biometric %s: %w", op, errs[0])
	}
	switch {
	case status == fiber.StatusUnauthorized || status == fiber.StatusForbidden:
		span.SetStatus(codes.Error, "rejected credentials")
		return status, ErrUnauthorized
	case status >= 300:
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		return status, fmt.Errorf("biometric %s: status %d", op, status)
	}
	return status, nil
}

// FakeClient is an in-memory Client. PingErrs are returned by successive
// Ping calls before it starts succeeding.
type FakeClient struct {
	mu        sync.Mutex
	PingErrs  []error
	DeleteErr error
	pings     int
	deleted   []string
}

func (f *FakeClient) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if len(f.PingErrs) == 0 {
		return nil
	}
	err := f.PingErrs[0]
	f.PingErrs = f.PingErrs[1:]
	return err
}

func (f *FakeClient) DeleteFace(_ context.Context, faceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.deleted = append(f.deleted, faceID)
	return nil
}

// Pings reports how many times Ping was called.
func (f *FakeClient) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// Deleted returns the facial ids removed so far.
func (f *FakeClient) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
