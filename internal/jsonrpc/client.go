// Package jsonrpc is a minimal JSON-RPC 2.0 client for the local control
// endpoint of the supervised blockchain client.
//
// Only the features nodekeeper needs are implemented: positional params,
// numeric ids, one request per HTTP POST over a keep-alive connection.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/dreamware/nodekeeper/internal/enode"
	"github.com/dreamware/nodekeeper/internal/fault"
)

// Version is the protocol version sent in every request.
const Version = "2.0"

// Enode query methods of the supported clients.
const (
	MethodParityEnode   = "parity_enode"
	MethodAdminNodeInfo = "admin_nodeInfo"
)

// DefaultTimeout bounds a single call, connection included.
const DefaultTimeout = 5 * time.Second

// Request is the envelope sent for every call.
type Request struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// Response is the envelope received for every call. Exactly one of Result
// and Error is expected to be set.
type Response struct {
	Version string          `json:"jsonrpc,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// ErrorObject is the decoded form of an application error, used for logs.
// The raw object is what callers receive.
type ErrorObject struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithEnodeMethod selects the method OwnAddress calls.
func WithEnodeMethod(method string) Option {
	return func(c *Client) {
		c.enodeMethod = method
	}
}

// Client issues calls against one fixed endpoint.
// It is safe for concurrent use; ids stay unique across goroutines.
type Client struct {
	http        *http.Client
	endpoint    string
	enodeMethod string
	counter     atomic.Uint64
}

// NewClient returns a client bound to endpoint, e.g. http://127.0.0.1:8545/.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("jsonrpc endpoint %q: scheme must be http or https", endpoint)
	}

	c := &Client{
		endpoint:    endpoint,
		enodeMethod: MethodParityEnode,
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:               nil,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// nextID returns ids 0, 1, 2, ... for the lifetime of the client.
func (c *Client) nextID() uint64 {
	return c.counter.Add(1) - 1
}

// Call invokes method with positional params and returns the raw result.
//
// Errors:
//   - fault.Transport: the request could not be sent, the body could not
//     be read, was not JSON, or carried neither result nor error
//   - fault.Application: the response carried an error object; the object
//     is available verbatim through fault.PayloadOf
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	op := "jsonrpc " + method
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(Request{
		Version: Version,
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	})
	if err != nil {
		return nil, fault.NewDecode(op, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fault.NewTransport(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.NewTransport(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.NewTransport(op, fmt.Errorf("read body: %w", err))
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fault.NewTransport(op, fmt.Errorf("malformed body (http %d): %w", resp.StatusCode, err))
	}

	switch {
	case len(out.Error) > 0 && string(out.Error) != "null":
		return nil, fault.NewApplication(op, out.Error)
	case len(out.Result) > 0:
		return out.Result, nil
	default:
		return nil, fault.NewTransport(op, fmt.Errorf("response has neither result nor error (http %d)", resp.StatusCode))
	}
}

// OwnAddress asks the client for its own enode address.
//
// The result is either the enode URL as a JSON string (parity_enode) or an
// object whose "enode" member is that string (admin_nodeInfo). Anything
// else, or a URL without identity, IP host or port, is a fault.Decode.
func (c *Client) OwnAddress(ctx context.Context) (enode.Address, error) {
	raw, err := c.Call(ctx, c.enodeMethod)
	if err != nil {
		return enode.Address{}, err
	}

	op := "jsonrpc " + c.enodeMethod
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var info struct {
			Enode string `json:"enode"`
		}
		if objErr := json.Unmarshal(raw, &info); objErr != nil || info.Enode == "" {
			return enode.Address{}, fault.NewDecode(op, fmt.Errorf("result %s is not an enode string: %w", raw, err))
		}
		s = info.Enode
	}

	addr, err := enode.Parse(s)
	if err != nil {
		return enode.Address{}, fault.NewDecode(op, err)
	}
	return addr, nil
}

// DecodeError extracts code and message from an application error for
// logging. It returns false if err carries no parsable error object.
func DecodeError(err error) (ErrorObject, bool) {
	payload, ok := fault.PayloadOf(err)
	if !ok {
		return ErrorObject{}, false
	}
	var obj ErrorObject
	if json.Unmarshal(payload, &obj) != nil {
		return ErrorObject{}, false
	}
	return obj, true
}
