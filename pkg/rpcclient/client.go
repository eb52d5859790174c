package rpcclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"go.uber.org/atomic"
)

const (
	defaultDialTimeout    = 4 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// Client represents the middleman for executing JSON RPC calls
// to the remote bitcoind node. Client is thread-safe and can be used from
// multiple goroutines.
type Client struct {
	cli      *http.Client
	endpoint *url.URL
	opts     Options
	requestF func(context.Context, *btcrpc.Request) (*btcrpc.Response, error)

	latestReqID *atomic.Uint64
	// getNextRequestID returns an ID to be used for the subsequent request creation.
	// It is defined on Client, so that our testing code can override this method
	// for the sake of more predictable request IDs generation behavior.
	getNextRequestID func() uint64
}

// Options defines options for the RPC client.
// All values are optional. If any duration is not specified,
// a default is used.
type Options struct {
	// User and Password are used for HTTP basic authentication, bitcoind
	// requires it unless cookie authentication is set up by a proxy.
	User     string
	Password string
	// CACert is a path to the PEM-encoded certificate (or bundle) used to
	// verify the node's TLS certificate. System roots are used if empty.
	CACert string
	// Insecure disables TLS certificate verification.
	Insecure       bool
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	// Limit total number of connections per host. No limit by default.
	MaxConnsPerHost int
}

// New returns a new Client ready to use.
func New(ctx context.Context, endpoint string, opts Options) (*Client, error) {
	cl := new(Client)
	err := initClient(ctx, cl, endpoint, opts)
	if err != nil {
		return nil, err
	}
	return cl, nil
}

func initClient(_ context.Context, cl *Client, endpoint string, opts Options) error {
	url, err := url.Parse(endpoint)
	if err != nil {
		return err
	}

	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	tlsCfg, err := makeTLSConfig(opts)
	if err != nil {
		return err
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: opts.DialTimeout,
			}).DialContext,
			MaxConnsPerHost: opts.MaxConnsPerHost,
			TLSClientConfig: tlsCfg,
		},
		Timeout: opts.RequestTimeout,
	}

	cl.cli = httpClient
	cl.endpoint = url
	cl.latestReqID = atomic.NewUint64(0)
	cl.getNextRequestID = (cl).getRequestID
	cl.opts = opts
	cl.requestF = cl.makeHTTPRequest
	return nil
}

func makeTLSConfig(opts Options) (*tls.Config, error) {
	if opts.CACert == "" && !opts.Insecure {
		return nil, nil
	}
	cfg := &tls.Config{
		InsecureSkipVerify: opts.Insecure, //nolint:gosec // Explicitly requested by the configuration.
	}
	if opts.CACert != "" {
		pem, err := os.ReadFile(opts.CACert)
		if err != nil {
			return nil, fmt.Errorf("SSL cert file %q: %w", opts.CACert, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("SSL cert file %q: no certificates found", opts.CACert)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func (c *Client) getRequestID() uint64 {
	return c.latestReqID.Inc()
}

// Endpoint returns the client endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Close closes unused underlying networks connections.
func (c *Client) Close() {
	c.cli.CloseIdleConnections()
}

// performRequest makes a call and decodes the result into v. Every error
// returned is a *GatewayError.
func (c *Client) performRequest(ctx context.Context, method string, p []any, v any) error {
	params := make([]json.RawMessage, len(p))
	for i := range p {
		raw, err := json.Marshal(p[i])
		if err != nil {
			return &GatewayError{Method: method, Err: err}
		}
		params[i] = raw
	}
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(raw, v); err != nil {
		return &GatewayError{Method: method, Err: fmt.Errorf("JSON decoding: %w", err)}
	}
	return nil
}

// Call invokes an arbitrary node method with the given positional
// parameters and returns its raw JSON result. Node-side errors are returned
// as *GatewayError wrapping *btcrpc.Error.
func (c *Client) Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	if params == nil {
		params = []json.RawMessage{}
	}
	var r = btcrpc.Request{
		JSONRPC: btcrpc.JSONRPCVersion,
		Method:  method,
		Params:  params,
		ID:      c.getNextRequestID(),
	}

	raw, err := c.requestF(ctx, &r)

	if raw != nil && raw.Error != nil {
		return nil, &GatewayError{Method: method, Err: raw.Error}
	} else if err != nil {
		return nil, &GatewayError{Method: method, Err: err}
	} else if raw == nil || raw.Result == nil {
		return nil, &GatewayError{Method: method, Err: errors.New("no result returned")}
	}
	return raw.Result, nil
}

func (c *Client) makeHTTPRequest(ctx context.Context, r *btcrpc.Request) (*btcrpc.Response, error) {
	var (
		buf = new(bytes.Buffer)
		raw = new(btcrpc.Response)
	)

	if err := json.NewEncoder(buf).Encode(r); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint.String(), buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.User != "" || c.opts.Password != "" {
		req.SetBasicAuth(c.opts.User, c.opts.Password)
	}
	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The node sends a proper JSON with an error for most of failures (with
	// HTTP 500 or 404 code), so look there first and if it parses, it has
	// more relevant data than HTTP error code.
	err = json.NewDecoder(resp.Body).Decode(raw)
	if err != nil {
		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("HTTP %d/%s", resp.StatusCode, http.StatusText(resp.StatusCode))
		} else {
			err = fmt.Errorf("JSON decoding: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Ping attempts to create a connection to the endpoint
// and returns an error if there is any.
func (c *Client) Ping() error {
	conn, err := net.DialTimeout("tcp", c.endpoint.Host, c.opts.DialTimeout)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}
