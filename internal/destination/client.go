package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"threatreg/internal/domain"
	"threatreg/internal/support"
)

// MaxResponseBody caps how much of a response body is kept.
const MaxResponseBody = 64 << 10

type ClientOptions struct {
	BaseURL            string
	DefaultPort        string
	Token              string
	Proxy              string
	InsecureSkipVerify bool
}

// client is the HTTP plumbing shared by all adapters. It holds no per-call
// state and is safe for concurrent use.
type client struct {
	base  *url.URL
	token string
	http  *http.Client
}

func newClient(opts ClientOptions) (*client, error) {
	base, err := normalizeBaseURL(opts.BaseURL, opts.DefaultPort)
	if err != nil {
		return nil, err
	}

	transport, err := support.CreateTransport(support.TransportOptions{
		Proxy:              opts.Proxy,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("destination: transport: %w", err)
	}

	return &client{
		base:  base,
		token: strings.TrimSpace(opts.Token),
		http:  &http.Client{Transport: transport},
	}, nil
}

func normalizeBaseURL(raw, defaultPort string) (*url.URL, error) {
	base, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("destination: invalid base url %q", raw)
	}
	if base.Port() == "" && defaultPort != "" {
		base.Host = net.JoinHostPort(base.Hostname(), defaultPort)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""
	return base, nil
}

// endpoint joins an already escaped path onto the base URL.
func (c *client) endpoint(rawPath string, query url.Values) string {
	u := *c.base
	u.RawPath = c.base.EscapedPath() + rawPath
	if path, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = path
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// postJSON sends payload as JSON with the bearer credential.
func (c *client) postJSON(ctx context.Context, target string, payload any) (int, []byte, error) {
	if c.token == "" {
		return 0, nil, domain.ErrCredentialMissing
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("destination: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("destination: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	if err != nil {
		return resp.StatusCode, respBody, fmt.Errorf("%w: read body: %w", domain.ErrTransport, err)
	}

	return resp.StatusCode, respBody, nil
}
