// Package api is the client side of the defect service REST API.
package api

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

	"wafer-defects/internal/encode"
	"wafer-defects/internal/logging"
	"wafer-defects/internal/model"

	"github.com/google/uuid"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     *logging.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute http(s): %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL.String() }

// Search lists defects matching query; an empty query lists all of them.
// Both {"defects":[...]} and a bare array are accepted.
func (c *Client) Search(ctx context.Context, query string) ([]model.Defect, error) {
	const op = "search"
	q := url.Values{}
	q.Set("query", query)
	body, err := c.do(ctx, op, http.MethodGet, "/defect/search", q, nil)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var defects []model.Defect
		if err := json.Unmarshal(trimmed, &defects); err != nil {
			return nil, c.decodeErr(op, http.MethodGet, "/defect/search", err)
		}
		return defects, nil
	}
	var resp model.SearchResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, c.decodeErr(op, http.MethodGet, "/defect/search", err)
	}
	if resp.Defects == nil {
		resp.Defects = []model.Defect{}
	}
	return resp.Defects, nil
}

func (c *Client) GetDefect(ctx context.Context, id int) (model.Defect, error) {
	const op = "get defect"
	path := "/defect/" + strconv.Itoa(id)
	body, err := c.do(ctx, op, http.MethodGet, path, nil, nil)
	if err != nil {
		return model.Defect{}, err
	}
	var d model.Defect
	if err := json.Unmarshal(body, &d); err != nil {
		return model.Defect{}, c.decodeErr(op, http.MethodGet, path, err)
	}
	return d, nil
}

// CreateDefect uploads a new defect with its PDF and modes.
func (c *Client) CreateDefect(ctx context.Context, p encode.Payload) error {
	_, err := c.do(ctx, "create defect", http.MethodPost, "/admin/upload", nil, &p)
	return err
}

// UpdateDefect replaces the defect's fields and its full mode list.
func (c *Client) UpdateDefect(ctx context.Context, id int, p encode.Payload) error {
	_, err := c.do(ctx, "update defect", http.MethodPut, "/defect/"+strconv.Itoa(id), nil, &p)
	return err
}

func (c *Client) DeleteDefect(ctx context.Context, id int) error {
	_, err := c.do(ctx, "delete defect", http.MethodDelete, "/defect/"+strconv.Itoa(id), nil, nil)
	return err
}

func (c *Client) AddMode(ctx context.Context, defectID int, p encode.Payload) error {
	_, err := c.do(ctx, "add mode", http.MethodPost, "/defect/mode/"+strconv.Itoa(defectID), nil, &p)
	return err
}

func (c *Client) UpdateMode(ctx context.Context, modeID int, p encode.Payload) error {
	_, err := c.do(ctx, "update mode", http.MethodPut, "/defect/mode/"+strconv.Itoa(modeID), nil, &p)
	return err
}

func (c *Client) DeleteMode(ctx context.Context, modeID int) error {
	_, err := c.do(ctx, "delete mode", http.MethodDelete, "/defect/mode/"+strconv.Itoa(modeID), nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload *encode.Payload) ([]byte, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	if payload != nil {
		buf, ct, err := payload.Body()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", op, err)
		}
		body, contentType = buf, ct
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &TransportError{Op: op, Method: method, Path: path, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	log := c.log.With("op", op, "method", method, "path", path, "request_id", reqID)
	if payload != nil {
		log = log.With("parts", len(payload.Parts))
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("request failed", "error", err.Error(), "elapsed", time.Since(start))
		return nil, &TransportError{Op: op, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		te := &TransportError{Op: op, Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		log.Warn("request rejected", "status", resp.StatusCode, "message", te.Message, "elapsed", time.Since(start))
		return nil, te
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Method: method, Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	log.Debug("request ok", "status", resp.StatusCode, "elapsed", time.Since(start))
	return raw, nil
}

func (c *Client) decodeErr(op, method, path string, err error) error {
	c.log.Warn("decode response", "op", op, "error", err.Error())
	return &TransportError{Op: op, Method: method, Path: path, Err: fmt.Errorf("decode response: %w", err)}
}

// errorMessage pulls the message out of {"status":"error","message":...}
// or {"error":...} bodies.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if m := strings.TrimSpace(body.Message); m != "" {
			return m
		}
		if m := strings.TrimSpace(body.Error); m != "" {
			return m
		}
		return ""
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 || strings.HasPrefix(s, "<") {
		return ""
	}
	return s
}
