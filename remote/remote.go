// Package remote is the HTTP client for the back-office API. It implements
// the store's Remote interface plus the login call that establishes a
// session.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/travco-dmc/backoffice-messaging/store"
)

// Client talks to the back-office API. Token is the bearer token for
// authenticated calls; Login fills it in.
type Client struct {
	BaseURL string
	Token   string

	// HTTPClient defaults to http.DefaultClient. Callers control per-call
	// deadlines through the context.
	HTTPClient *http.Client
}

// New returns a client for the API at baseURL.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

// Login authenticates with the API, stores the returned bearer token on the
// client, and returns the established session.
func (c *Client) Login(ctx context.Context, username, password string) (store.Session, error) {
	body := map[string]string{"username": username, "password": password}
	var res struct {
		Token string        `json:"token"`
		User  store.Session `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &res); err != nil {
		return store.Session{}, fmt.Errorf("login: %w", err)
	}
	c.Token = res.Token
	sess := res.User
	sess.Token = res.Token
	return sess, nil
}

// Ping checks that the API answers for the current token. Any non-error
// response means the remote is available.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/auth/user", nil, nil)
}

// GetAll fetches every record in the named resource collection.
func (c *Client) GetAll(ctx context.Context, resource string) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/storage/"+resource, nil, &records); err != nil {
		return nil, fmt.Errorf("get %s: %w", resource, err)
	}
	return records, nil
}

// Save stores a new record in the named resource collection and returns the
// record as persisted, including server-assigned fields such as the id.
func (c *Client) Save(ctx context.Context, resource string, record any) (json.RawMessage, error) {
	var saved json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/storage/"+resource, record, &saved); err != nil {
		return nil, fmt.Errorf("save %s: %w", resource, err)
	}
	return saved, nil
}

// Update applies a partial patch to the record with the given id.
func (c *Client) Update(ctx context.Context, resource, id string, patch any) error {
	if err := c.do(ctx, http.MethodPatch, "/api/storage/"+resource+"/"+id, patch, nil); err != nil {
		return fmt.Errorf("update %s/%s: %w", resource, id, err)
	}
	return nil
}

// MarkAllRead asks the server to mark every message addressed to username as
// read.
func (c *Client) MarkAllRead(ctx context.Context, username string) error {
	body := map[string]string{"username": username}
	if err := c.do(ctx, http.MethodPatch, "/api/messages/read-all", body, nil); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	cli := c.HTTPClient
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
