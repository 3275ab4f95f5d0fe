// Package practicum is the HTTP client for the homework statuses API.
package practicum

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
	"unicode/utf8"

	"hwbot/internal/homework"
)

const (
	DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"
	DefaultTimeout  = 30 * time.Second

	maxResponseBodySize = 1 << 20 // 1MB
	maxErrorExcerpt     = 256
)

// Config configures a Client.
type Config struct {
	Endpoint string
	Token    string
	// Timeout bounds one request, including reading the body.
	Timeout time.Duration
	// HTTPClient overrides the transport (tests). Nil uses a pooled client.
	HTTPClient *http.Client
}

// Client fetches homework statuses with an OAuth token.
//
// Timeouts are applied per request via context, not as a client timeout.
type Client struct {
	endpoint   string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("practicum token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{endpoint: endpoint, token: cfg.Token, timeout: timeout, httpClient: hc}, nil
}

// Homeworks returns the statuses changed since from (Unix seconds).
//
// Every failure is a *homework.Error: KindNetwork when the request cannot be
// made, KindHTTPStatus for non-200 answers, KindDecode for a body that is not
// JSON and KindRemote when the body is an error envelope.
func (c *Client) Homeworks(ctx context.Context, from int64) (*homework.Statuses, error) {
	const op = "get homework statuses"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, homework.Wrap(homework.KindValidation, op, err)
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(from, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, homework.Wrap(homework.KindValidation, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error already names the method and URL; the token only travels in headers.
		return nil, homework.Wrap(homework.KindNetwork, op, fmt.Errorf("request failed (from_date=%d): %w", from, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, homework.Wrap(homework.KindNetwork, op, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &homework.Error{
			Kind: homework.KindHTTPStatus,
			Op:   op,
			Err:  &StatusError{Code: resp.StatusCode, URL: u.String(), Body: excerpt(body)},
		}
	}

	var out homework.Statuses
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, homework.Wrap(homework.KindDecode, op, fmt.Errorf("invalid JSON body %q: %w", excerpt(body), err))
	}
	if out.IsErrorEnvelope() {
		return nil, homework.Errorf(homework.KindRemote, op, "api error: code=%s error=%s message=%q",
			rawString(out.Code), rawString(out.Error), out.Message)
	}
	return &out, nil
}

// Close closes idle connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// StatusError is returned (wrapped) for non-200 answers.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected http status %d from %s", e.Code, e.URL)
	}
	return fmt.Sprintf("unexpected http status %d from %s: %s", e.Code, e.URL, e.Body)
}

func excerpt(b []byte) string {
	s := string(bytes.TrimSpace(b))
	if len(s) > maxErrorExcerpt {
		n := maxErrorExcerpt
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		return s[:n] + "..."
	}
	return s
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "-"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
