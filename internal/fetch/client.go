// Package fetch performs the HTTP work of the resolver: small metadata
// requests and resumable-by-retry binary downloads shared between callers.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"hlsup/internal/hlserr"
	"hlsup/internal/logx"
)

const defaultUserAgent = "hlsup/1.0"

// registry coalesces downloads for the same source and destination across
// every Client in the process.
var registry singleflight.Group

// Request describes a metadata GET.
type Request struct {
	URL     string
	Headers map[string]string
}

// Client issues HTTP requests. The zero value is not usable; call NewClient.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Logger    logx.Logger

	flight *singleflight.Group
}

// NewClient returns a client using httpClient, or a default client when nil.
func NewClient(httpClient *http.Client, logger logx.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		HTTP:      httpClient,
		UserAgent: defaultUserAgent,
		Logger:    logx.OrNop(logger),
		flight:    &registry,
	}
}

// GetText fetches req.URL and returns the body as text. A single 301/302
// redirect is followed by hand; the response after that hop is final.
func (c *Client) GetText(ctx context.Context, req Request) (string, error) {
	noRedirect := *c.HTTP
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := c.do(ctx, &noRedirect, req.URL, req.Headers)
	if err != nil {
		return "", &hlserr.NetworkError{URL: req.URL, Err: err}
	}
	if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
		resp.Body.Close()
		location := resp.Header.Get("Location")
		if location == "" {
			return "", &hlserr.NetworkError{URL: req.URL, Err: fmt.Errorf("redirect %d without Location header", resp.StatusCode)}
		}
		next, err := resolveLocation(req.URL, location)
		if err != nil {
			return "", &hlserr.NetworkError{URL: req.URL, Err: err}
		}
		c.Logger.Debugf("GET %s redirected to %s", req.URL, next)
		resp, err = c.do(ctx, &noRedirect, next, req.Headers)
		if err != nil {
			return "", &hlserr.NetworkError{URL: next, Err: err}
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &hlserr.NetworkError{URL: req.URL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &hlserr.NetworkError{URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(body), nil
}

func (c *Client) do(ctx context.Context, client *http.Client, target string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	c.Logger.Debugf("GET %s: %s (%s)", target, resp.Status, time.Since(start).Round(time.Millisecond))
	return resp, nil
}

func resolveLocation(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse Location header: %w", err)
	}
	return b.ResolveReference(l).String(), nil
}
