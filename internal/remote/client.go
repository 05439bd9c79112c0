// Package remote talks to the hosted backend: the REST table API, the auth
// API and the user-management function.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	restPath      = "/rest/v1/"
	authPath      = "/auth/v1/"
	functionsPath = "/functions/v1/"

	requestIDHeader = "X-Request-Id"
)

// Options configures a Client.
type Options struct {
	URL           string
	AnonKey       string
	AdminFunction string
	Timeout       time.Duration
	Logger        *zap.SugaredLogger
	// Transport is the base round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client is a backend client. It keeps the current auth session and sends
// it as the bearer of every table call; without a session the anon key is sent.
type Client struct {
	base     *url.URL
	anonKey  string
	function string
	log      *zap.SugaredLogger

	// rest carries the session bearer, plain leaves Authorization to the caller
	rest  *http.Client
	plain *http.Client

	mu      sync.RWMutex
	current *oauth2.Token
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", opts.URL)
	}
	if opts.AnonKey == "" {
		return nil, fmt.Errorf("backend anon key is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.AdminFunction == "" {
		opts.AdminFunction = "admin-users"
	}

	c := &Client{
		base:     base,
		anonKey:  opts.AnonKey,
		function: opts.AdminFunction,
		log:      opts.Logger,
		plain:    &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
	}
	c.rest = &http.Client{
		Timeout:   opts.Timeout,
		Transport: &oauth2.Transport{Source: c, Base: opts.Transport},
	}
	return c, nil
}

// Token implements oauth2.TokenSource for the table transport.
func (c *Client) Token() (*oauth2.Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current != nil && c.current.AccessToken != "" {
		tok := *c.current
		return &tok, nil
	}
	return &oauth2.Token{AccessToken: c.anonKey, TokenType: "Bearer"}, nil
}

// request is one backend call.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	header  http.Header
	bearer  *oauth2.Token
	session bool
}

// do sends req and decodes a successful JSON answer into out when out is not
// nil. Non-2xx answers come back as *ugibdd.RemoteError.
func (c *Client) do(ctx context.Context, req request, out any) (http.Header, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	id := uuid.NewString()
	httpReq.Header.Set(requestIDHeader, id)
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := c.plain
	switch {
	case req.session:
		client = c.rest
	case req.bearer != nil:
		req.bearer.SetAuthHeader(httpReq)
	default:
		httpReq.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		c.log.Warnw("backend request failed", "request_id", id, "method", req.method, "path", req.path, "error", err)
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := decodeError(resp)
		c.log.Debugw("backend answered with an error", "request_id", id, "method", req.method, "path", req.path, "status", resp.StatusCode, "error", rerr)
		return resp.Header, rerr
	}
	if out == nil || req.method == http.MethodHead {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return resp.Header, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Header, nil
}
