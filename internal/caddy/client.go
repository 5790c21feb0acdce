package caddy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"irrigation-go-home/internal/jsobj"
)

const (
	// DefaultConnectTimeout is short so a /24 sweep does not stall on dead hosts.
	DefaultConnectTimeout = 300 * time.Millisecond
	DefaultReadTimeout    = 5 * time.Second

	// UserAgent is sent with every request unless overridden.
	UserAgent = "irrigation-go-home"

	maxBodySize = 1 << 20
)

// Kind classifies a response body.
type Kind int

const (
	KindUnknown Kind = iota
	KindJSON
	KindText
	KindJSObject
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindText:
		return "text"
	case KindJSObject:
		return "js-object"
	default:
		return "unknown"
	}
}

// Response is the outcome of one request. Transport failures do not surface
// as errors: they produce a synthetic 408 (timeout) or 404 (anything else)
// with Failure set.
type Response struct {
	StatusCode  int
	Kind        Kind
	ContentType string
	Raw         []byte
	Body        any // decoded value for KindJSON, string for KindText
	Failure     error
}

// OK reports whether the controller answered HTTP 200.
func (r *Response) OK() bool {
	return r != nil && r.Failure == nil && r.StatusCode == http.StatusOK
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts overrides the connect and read timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		c.connectTimeout = connect
		c.readTimeout = read
	}
}

// WithDebug dumps every request and response to w.
func WithDebug(w io.Writer) Option {
	return func(c *Client) {
		c.debug = w
	}
}

// WithTransport replaces the HTTP transport. Timeouts are still applied as
// an overall request deadline.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client is bound to a single controller address. It holds no response
// state and is safe for concurrent use.
type Client struct {
	addr           string
	http           *http.Client
	transport      http.RoundTripper
	connectTimeout time.Duration
	readTimeout    time.Duration
	userAgent      string
	debug          io.Writer
	logger         *slog.Logger
	now            func() time.Time
}

var _ Device = (*Client)(nil)

// New creates a client for addr (an IPv4 address, optionally with a port).
// An empty addr yields an unbound client whose requests all fail as
// unreachable without touching the network.
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:           addr,
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		userAgent:      UserAgent,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	rt := c.transport
	if rt == nil {
		dialer := &net.Dialer{Timeout: c.connectTimeout}
		rt = &http.Transport{
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: c.readTimeout,
			DisableKeepAlives:     true,
		}
	}
	if c.debug != nil {
		rt = &debugTransport{next: rt, w: c.debug}
	}
	c.http = &http.Client{
		Transport: rt,
		Timeout:   c.connectTimeout + c.readTimeout,
	}
	c.logger = c.logger.With("component", "caddy", "addr", addr)
	return c
}

// Address returns the bound address, or "" for an unbound client.
func (c *Client) Address() string {
	return c.addr
}

func (c *Client) String() string {
	return c.addr
}

// Get issues a GET for path. The query always carries time=<unix seconds>
// as a cache buster; query parameters already in path and then those in
// query override it. Headers in header override the common set.
//
// The error is non-nil only when path is invalid or a JSON body cannot be
// decoded; in the latter case the response is returned as well.
func (c *Client) Get(ctx context.Context, path string, query url.Values, header http.Header) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, header, nil)
}

// Post submits form as application/x-www-form-urlencoded, with the same
// query, header and failure handling as Get.
func (c *Client) Post(ctx context.Context, path string, form url.Values) (*Response, error) {
	header := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	return c.do(ctx, http.MethodPost, path, nil, header, strings.NewReader(form.Encode()))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, header http.Header, body io.Reader) (*Response, error) {
	if c.addr == "" {
		return &Response{StatusCode: http.StatusNotFound, Failure: fmt.Errorf("%w: no address", ErrUnreachable)}, nil
	}

	target, err := c.buildURL(path, query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header = c.commonHeaders()
	for k, vs := range header {
		req.Header[http.CanonicalHeaderKey(k)] = vs
	}

	resp, err := c.http.Do(req)
	if err != nil {
		r := transportFailure(err)
		c.logger.Debug("request failed", "method", method, "path", path, "status", r.StatusCode, "err", err)
		return r, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		r := transportFailure(err)
		c.logger.Debug("read body failed", "method", method, "path", path, "err", err)
		return r, nil
	}

	r := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Raw:         raw,
	}
	r.Kind = classify(r.ContentType)
	c.logger.Debug("request", "method", method, "path", path, "status", r.StatusCode, "kind", r.Kind)

	switch r.Kind {
	case KindJSON:
		v, err := jsobj.DecodeJSON(raw)
		if err != nil {
			return r, fmt.Errorf("%s %s: %w", method, path, err)
		}
		r.Body = v
	default:
		r.Body = string(raw)
	}
	return r, nil
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", path, err)
	}
	q := url.Values{}
	q.Set("time", strconv.FormatInt(c.now().Unix(), 10))
	for k, vs := range u.Query() {
		q[k] = vs
	}
	for k, vs := range query {
		q[k] = vs
	}
	u.Scheme = "http"
	u.Host = c.addr
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) commonHeaders() http.Header {
	return http.Header{
		"User-Agent":    {c.userAgent},
		"Cache-Control": {"no-cache"},
		"Pragma":        {"no-cache"},
		"Accept":        {"text/json, application/json"},
	}
}

// classify maps a Content-Type to a body kind: anything */json is JSON.
func classify(contentType string) Kind {
	if strings.TrimSpace(contentType) == "" {
		return KindUnknown
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}
	if strings.HasSuffix(mediaType, "/json") {
		return KindJSON
	}
	return KindText
}

func transportFailure(err error) *Response {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Response{StatusCode: http.StatusRequestTimeout, Failure: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}
	return &Response{StatusCode: http.StatusNotFound, Failure: fmt.Errorf("%w: %w", ErrUnreachable, err)}
}

// debugMu serializes dumps from clients sharing one writer during a sweep.
var debugMu sync.Mutex

type debugTransport struct {
	next http.RoundTripper
	w    io.Writer
}

func (t *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if dump, err := httputil.DumpRequestOut(req, true); err == nil {
		t.write("-> ", dump)
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.write("<- ", []byte(err.Error()+"\n"))
		return nil, err
	}
	if dump, err := httputil.DumpResponse(resp, true); err == nil {
		t.write("<- ", dump)
	}
	return resp, nil
}

func (t *debugTransport) write(prefix string, b []byte) {
	debugMu.Lock()
	defer debugMu.Unlock()
	fmt.Fprintf(t.w, "%s%s\n", prefix, b)
}
