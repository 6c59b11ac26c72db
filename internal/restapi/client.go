// Package restapi is a thin client for the external REST API that owns
// transaction persistence. Requests are never retried; failures surface to
// the caller as *APIError or transport errors.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/store"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx response from the remote API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rest api: status %d", e.Status)
	}
	return fmt.Sprintf("rest api: status %d: %s", e.Status, e.Message)
}

// Is maps 404 responses to store.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == store.ErrNotFound && e.Status == http.StatusNotFound
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var (
	_ store.Backend = (*Client)(nil)
	_ store.Pinger  = (*Client)(nil)
)

type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid rest api base url %q", baseURL)
	}
	c := &Client{
		baseURL:    u.String(),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var out api.Transaction
	if err := c.do(ctx, http.MethodPost, "/transactions", nil, api.FromTransaction(t), &out); err != nil {
		return core.Transaction{}, err
	}
	return out.ToCore()
}

func (c *Client) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var out api.Transaction
	if err := c.do(ctx, http.MethodPut, "/transactions/"+url.PathEscape(t.ID), nil, api.FromTransaction(t), &out); err != nil {
		return core.Transaction{}, err
	}
	return out.ToCore()
}

func (c *Client) Get(ctx context.Context, id string) (core.Transaction, error) {
	var out api.Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return core.Transaction{}, err
	}
	return out.ToCore()
}

// List asks the remote API to filter and sort. The result is filtered and
// sorted again locally so callers get the same semantics from every backend.
func (c *Client) List(ctx context.Context, q store.ListQuery) ([]core.Transaction, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	if q.Owner != "" {
		params.Set("owner", q.Owner)
	}
	params.Set("sort", string(q.SortField))
	params.Set("order", string(q.Order))
	if q.Type != "" {
		params.Set("type", q.Type.String())
	}
	if !q.From.IsZero() {
		params.Set("from", q.From.String())
	}
	if !q.To.IsZero() {
		params.Set("to", q.To.String())
	}
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var wire []api.Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions", params, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(wire))
	for _, w := range wire {
		t, err := w.ToCore()
		if err != nil {
			return nil, fmt.Errorf("decode transaction %q: %w", w.ID, err)
		}
		out = append(out, t)
	}
	// The remote API already skipped Offset rows.
	local := q
	local.Offset = 0
	return local.Apply(out), nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) Categories(ctx context.Context) ([]core.Category, error) {
	var wire []api.Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &wire); err != nil {
		return nil, err
	}
	cats := make([]core.Category, 0, len(wire))
	for _, w := range wire {
		cat, err := w.ToCore()
		if err != nil {
			continue
		}
		cats = append(cats, cat)
	}
	return core.NewCategorySet(cats).All(), nil
}

// Ping checks that the API answers the category endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Categories(ctx)
	return err
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest api %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeError(res)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	apiErr := &APIError{Status: res.StatusCode}
	var body api.Error
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Upsert pushes t to the remote API, creating it when the id is unknown there.
func (c *Client) Upsert(ctx context.Context, t core.Transaction) error {
	_, err := c.Update(ctx, t)
	if errors.Is(err, store.ErrNotFound) {
		_, err = c.Create(ctx, t)
	}
	return err
}

// Remove deletes id remotely. An id the API does not know is already gone.
func (c *Client) Remove(ctx context.Context, id string) error {
	if err := c.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}
