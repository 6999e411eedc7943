// Package backend is the HTTP client for the employee REST backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"workload/internal/models"

	"github.com/redis/go-redis/v9"
)

const projectsCacheKey = "workload:projects"

// ErrNotFound is returned when the backend has no such employee.
var ErrNotFound = errors.New("employee not found")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the employee backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client. A trailing slash on baseURL is ignored.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache enables caching of the project list.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// GetEmployee fetches one record. The backend answers with either an
// object or a one-element array.
func (c *Client) GetEmployee(ctx context.Context, id string) (models.Record, error) {
	endpoint := fmt.Sprintf("%s/api/employees/%s", c.baseURL, url.PathEscape(id))

	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []models.Record
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode employee list: %w", err)
		}
		if len(list) == 0 || list[0] == nil {
			return nil, ErrNotFound
		}
		return list[0], nil
	}

	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode employee: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

type project struct {
	ProjectName string `json:"project_name"`
}

// ListProjects returns the sorted, distinct project names.
func (c *Client) ListProjects(ctx context.Context) ([]string, error) {
	var names []string
	if c.readCache(ctx, projectsCacheKey, &names) {
		return names, nil
	}

	var projects []project
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/api/projects", nil, &projects); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(projects))
	names = make([]string, 0, len(projects))
	for _, p := range projects {
		if p.ProjectName == "" {
			continue
		}
		if _, ok := seen[p.ProjectName]; ok {
			continue
		}
		seen[p.ProjectName] = struct{}{}
		names = append(names, p.ProjectName)
	}
	sort.Strings(names)

	c.writeCache(ctx, projectsCacheKey, names)
	return names, nil
}

// PatchEmployee sends a partial update and returns the stored record.
func (c *Client) PatchEmployee(ctx context.Context, id string, payload any) (models.Record, error) {
	endpoint := fmt.Sprintf("%s/api/employees/%s", c.baseURL, url.PathEscape(id))
	var wrap struct {
		Data models.Record `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPatch, endpoint, payload, &wrap); err != nil {
		return nil, err
	}
	if wrap.Data == nil {
		wrap.Data = models.Record{}
	}
	return wrap.Data, nil
}

// PasswordUpdate is the body of POST /api/auth/update-password.
type PasswordUpdate struct {
	EmployeeID      string `json:"employee_id,omitempty"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UpdatePassword asks the backend to change a password.
func (c *Client) UpdatePassword(ctx context.Context, req PasswordUpdate, token string) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/update-password", bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	c.addHeaders(httpReq)
	return c.do(httpReq, nil)
}

// HealthCheck checks that the backend answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("Update failed with status %d", resp.StatusCode),
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
