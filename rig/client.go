// Package rig talks to the rolling rig's HTTP interface.
package rig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ilievs/rigdash/core"
)

const (
	configPath = "/config"
	uploadsFmt = "/uploads/%d.jpg"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// Client holds the rig address and the HTTP client shared by ConfigClient,
// CommandDispatcher and PreviewResolver. It keeps no per-request state.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New parses the rig base address, e.g. "http://192.168.0.42".
func New(address string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(address, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse rig address %q", address)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("rig address %q must be http or https", address)
	}

	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Base() *url.URL {
	u := *c.base
	return &u
}

func (c *Client) url(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

type call struct {
	method string
	path   string
	body   io.Reader
	header http.Header
	// rejectable calls report 400/422 as *core.ValidationError
	rejectable bool
}

// do sends one request and decodes a JSON response into target. Everything
// that goes wrong comes back as *core.TransportError, except rejections of a
// rejectable call.
func (c *Client) do(ctx context.Context, cl call, target any) error {
	op := cl.method + " " + cl.path
	body := cl.body

	req, err := http.NewRequestWithContext(ctx, cl.method, c.url(cl.path), body)
	if err != nil {
		return &core.TransportError{Op: op, Err: errors.Wrap(err, "could not create request")}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case cl.rejectable && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity):
		return rejection(resp)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &core.TransportError{Op: op, Err: fmt.Errorf("bad status code from rig: %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return &core.TransportError{Op: op, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

func rejection(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &eb) == nil {
		switch {
		case eb.Error != "":
			msg = eb.Error
		case eb.Detail != "":
			msg = eb.Detail
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &core.ValidationError{Message: msg}
}
