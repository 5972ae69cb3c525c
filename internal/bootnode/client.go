package bootnode

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dreamware/nodekeeper/internal/enode"
	"github.com/dreamware/nodekeeper/internal/fault"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The default has a 5s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client reads and writes enode records of one network.
type Client struct {
	http    *http.Client
	base    string // scheme://host:port, no trailing slash
	network string
}

// BaseURL returns the registry URL for host and port.
func BaseURL(host string, port uint16) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// NewClient returns a client for the registry at base, filing records
// under network.
func NewClient(base, network string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("bootnode url %q: %w", base, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("bootnode url %q: want http://host:port", base)
	}

	c := &Client{
		http:    httpClient,
		base:    strings.TrimSuffix(base, "/"),
		network: network,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Network returns the network name records are filed under.
func (c *Client) Network() string {
	return c.network
}

// StaticEnodes returns the enodes the registry knows for the network.
// Transport failures and non-2xx statuses are fault.Transport; a body that
// is not a JSON array yields an empty list and no error.
func (c *Client) StaticEnodes(ctx context.Context) ([]enode.Address, error) {
	q := url.Values{}
	q.Set("network", c.network)
	body, err := getBody(ctx, c.http, c.base+"/staticenodes?"+q.Encode())
	if err != nil {
		return nil, fault.NewTransport("bootnode staticenodes", err)
	}
	return ParseStaticEnodes(body), nil
}

// ParseStaticEnodes decodes a JSON array of enode URLs. Entries that are
// not strings, not enode URLs, or lack an identity, IP host or port are
// skipped. Anything other than an array yields an empty list.
func ParseStaticEnodes(body []byte) []enode.Address {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return []enode.Address{}
	}

	out := make([]enode.Address, 0, len(entries))
	for _, raw := range entries {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			continue
		}
		addr, err := enode.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// Publish posts info to the registry. Any status of 300 or above, like a
// transport failure, is fault.Transport.
func (c *Client) Publish(ctx context.Context, info EnodeInfo) error {
	if err := postJSON(ctx, c.http, c.base+"/", info); err != nil {
		return fault.NewTransport("bootnode publish", err)
	}
	return nil
}
