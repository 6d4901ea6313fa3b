package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	"facefeed/internal/models"
	"facefeed/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/codes"
)

// DirectoryUser is a user as the identity provider knows it.
type DirectoryUser struct {
	ID              string
	Email           string
	EmailVerified   bool
	Username        string
	FirstName       string
	LastName        string
	ImageURL        string
	PrivateMetadata map[string]any
}

// DisplayName joins the first and last name.
func (u *DirectoryUser) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Directory reads users from the identity provider and stores server-only
// metadata on them.
type Directory interface {
	GetUser(ctx context.Context, id string) (*DirectoryUser, error)
	// UpdatePrivateMetadata merges metadata into the user's private metadata.
	// A nil value removes the key.
	UpdatePrivateMetadata(ctx context.Context, id string, metadata map[string]any) error
}

// HTTPDirectory is the Directory over the provider's REST API.
type HTTPDirectory struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
}

// NewHTTPDirectory returns an HTTPDirectory. timeout bounds every request.
func NewHTTPDirectory(baseURL, secretKey string, timeout time.Duration) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDirectory{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		timeout:   timeout,
	}
}

type apiEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Verification *struct {
		Status string `json:"status"`
	} `json:"verification"`
}

type apiUser struct {
	ID                    string         `json:"id"`
	Username              string         `json:"username"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []apiEmail     `json:"email_addresses"`
	PrivateMetadata       map[string]any `json:"private_metadata"`
}

func (u *apiUser) toDirectoryUser() *DirectoryUser {
	out := &DirectoryUser{
		ID:              u.ID,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ImageURL:        u.ImageURL,
		PrivateMetadata: u.PrivateMetadata,
	}
	if out.PrivateMetadata == nil {
		out.PrivateMetadata = map[string]any{}
	}
	for i, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID || (u.PrimaryEmailAddressID == "" && i == 0) {
			out.Email = e.EmailAddress
			out.EmailVerified = e.Verification != nil && e.Verification.Status == "verified"
			break
		}
	}
	return out
}

func (d *HTTPDirectory) GetUser(ctx context.Context, id string) (*DirectoryUser, error) {
	var user apiUser
	if err := d.do(ctx, "get_user", fiber.MethodGet, "/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return user.toDirectoryUser(), nil
}

func (d *HTTPDirectory) UpdatePrivateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	body := map[string]any{"private_metadata": metadata}
	return d.do(ctx, "update_metadata", fiber.MethodPatch, "/users/"+url.PathEscape(id)+"/metadata", body, nil)
}

func (d *HTTPDirectory) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := observability.StartClientSpan(ctx, "identity", op)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return models.NewUnavailableError("Identity provider unavailable", err)
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(d.baseURL + path)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+d.secretKey)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(d.timeoutFor(ctx))
	if body != nil {
		agent.JSON(body)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return models.NewInternalError(err)
	}

	status, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		span.SetStatus(codes.Error, errs[0].Error())
		return models.NewUnavailableError("Identity provider unavailable", errs[0])
	}
	switch {
	case status == fiber.StatusNotFound:
		id, _, _ := strings.Cut(strings.TrimPrefix(path, "/users/"), "/")
		return models.NewNotFoundError("User", id)
	case status == fiber.StatusUnauthorized || status == fiber.StatusForbidden:
		span.SetStatus(codes.Error, "rejected credentials")
		return models.NewInternalError(fmt.Errorf("identity provider rejected credentials: %d", status))
	case status >= 300:
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		return models.NewUnavailableError("Identity provider unavailable", fmt.Errorf("identity %s: status %d", op, status))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return models.NewInternalError(fmt.Errorf("decode identity response: %w", err))
	}
	return nil
}

// timeoutFor shortens the client timeout to the context deadline.
func (d *HTTPDirectory) timeoutFor(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d.timeout {
			return max(left, time.Millisecond)
		}
	}
	return d.timeout
}

// MemoryDirectory is an in-memory Directory for tests and local development.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]*DirectoryUser
}

func NewMemoryDirectory(users ...*DirectoryUser) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]*DirectoryUser)}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put stores a copy of u.
func (d *MemoryDirectory) Put(u *DirectoryUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = cloneDirectoryUser(u)
}

func (d *MemoryDirectory) GetUser(_ context.Context, id string) (*DirectoryUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	return cloneDirectoryUser(u), nil
}

func (d *MemoryDirectory) UpdatePrivateMetadata(_ context.Context, id string, metadata map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return models.NewNotFoundError("User", id)
	}
	mergeMetadata(u.PrivateMetadata, metadata)
	return nil
}

func mergeMetadata(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

func cloneDirectoryUser(u *DirectoryUser) *DirectoryUser {
	c := *u
	c.PrivateMetadata = maps.Clone(u.PrivateMetadata)
	if c.PrivateMetadata == nil {
		c.PrivateMetadata = map[string]any{}
	}
	return &c
}
