// Package xnat is a small client for the XNAT REST API: it opens a session,
// lists the subjects of a project and exposes each subject's experiments and
// metadata in the shape the download package expects.
package xnat

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultURL is XNAT Central, where the OASIS projects are hosted.
const DefaultURL = "https://central.xnat.org"

var (
	ErrUnauthorized = errors.New("xnat: unauthorized")
	ErrNotFound     = errors.New("xnat: not found")
	// ErrInvalidName is returned for project or subject names that are not
	// a single path segment.
	ErrInvalidName = errors.New("xnat: invalid name")
)

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Method string
	Path   string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("xnat: %s %s: unexpected status %s", e.Method, e.Path, e.Status)
}

// Options configures Connect.
type Options struct {
	BaseURL  string
	Username string
	Password string
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	Timeout            time.Duration
	// ScanType selects which scans of an image session are downloaded.
	// Empty means ALL.
	ScanType string
	Logger   log.FieldLogger
	// HTTPClient overrides the transport; its Jar is replaced.
	HTTPClient *http.Client
}

// Client holds an authenticated XNAT session.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	scanType   string
	logger     log.FieldLogger
}

// Connect authenticates against the server and returns a client bound to the
// new session.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	c, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	if err := c.login(ctx, opts.Username, opts.Password); err != nil {
		return nil, err
	}
	c.logger.Debugf("Opened XNAT session on %s as %s", c.baseURL, opts.Username)
	return c, nil
}

func newClient(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse xnat url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse xnat url: %q is not absolute", raw)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Transport: transport, Timeout: opts.Timeout}
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	httpClient.Jar = jar

	scanType := opts.ScanType
	if scanType == "" {
		scanType = "ALL"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		userAgent:  "downxnat/1.0",
		scanType:   scanType,
		logger:     logger,
	}, nil
}

func (c *Client) login(ctx context.Context, username, password string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/data/JSESSION", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(username, password)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("open xnat session: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("open xnat session: %w", err)
	}
	// The body is the session id; the cookie jar already holds it.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close ends the server-side session.
func (c *Client) Close(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/data/JSESSION", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("close xnat session: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// get issues a GET and returns the response when the status is 2xx. The
// caller closes the body.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Request.URL.Path)
	}
	return &StatusError{
		Method: resp.Request.Method,
		Path:   resp.Request.URL.Path,
		Status: resp.Status,
		Code:   resp.StatusCode,
	}
}

// checkSegment rejects names that would change the REST path they are
// joined into.
func checkSegment(kind, name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\?#`) {
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	}
	return nil
}

func jsonQuery() url.Values {
	return url.Values{"format": []string{"json"}}
}
