package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/routine"
	"github.com/cuemby/burrow/pkg/types"
)

// Client talks to the HTTP API of a running burrow server
type Client struct {
	base *url.URL
	http *http.Client
}

// Error is a non-2xx answer of the server
type Error struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("server returned %d: invalid %s: %s", e.StatusCode, e.Field, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the server at addr, e.g.
// "http://127.0.0.1:8080". A bare host:port is taken as http.
func NewClient(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Save saves obj at the document path and returns the opID
func (c *Client) Save(ctx context.Context, path string, obj map[string]any, schema types.Schema, opts types.Options) (string, error) {
	body, err := json.Marshal(map[string]any{
		"object":  obj,
		"schema":  schema,
		"options": opts,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		OpID string `json:"opId"`
	}
	err = c.do(ctx, http.MethodPut, docURL(path), nil, body, &resp)
	return resp.OpID, err
}

// Remove removes the document at path and returns the opID
func (c *Client) Remove(ctx context.Context, path string, schema types.Schema) (string, error) {
	var resp struct {
		OpID string `json:"opId"`
	}
	err := c.do(ctx, http.MethodDelete, docURL(path), schemaQuery(schema), nil, &resp)
	return resp.OpID, err
}

// Get reads a document or a collection scope
func (c *Client) Get(ctx context.Context, path string, schema types.Schema, opts types.Options) (*routine.Result, error) {
	q := schemaQuery(schema)
	if opts.Order != "" {
		q.Set("order", string(opts.Order))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.PageToken != "" {
		q.Set("pageToken", opts.PageToken)
	}
	if opts.FullSearch {
		q.Set("q", opts.Query)
	}
	if w := opts.Where; w != nil {
		value, err := json.Marshal(w.Value)
		if err != nil {
			return nil, fmt.Errorf("encode where value: %w", err)
		}
		q.Set("where", w.Field)
		q.Set("op", string(w.Op))
		q.Set("value", string(value))
	}

	var res routine.Result
	if err := c.do(ctx, http.MethodGet, docURL(path), q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health returns the server's /health status
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
	return resp.Status, err
}

func docURL(path string) string {
	return "/v1/docs/" + strings.Trim(path, "/")
}

func schemaQuery(schema types.Schema) url.Values {
	q := url.Values{}
	for _, f := range schema.DBSearchIndex {
		q.Add("index", f)
	}
	for _, f := range schema.FullSearchIndex {
		q.Add("search", f)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &Error{StatusCode: resp.StatusCode, Message: e.Error, Field: e.Field}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
