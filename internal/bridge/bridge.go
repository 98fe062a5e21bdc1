// Package bridge relays normalized invocations to the PHP built-in server
// over loopback HTTP.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"php-lambda-launcher/internal/backend"

	"github.com/sirupsen/logrus"
)

// Starter brings the backend up before a request is dispatched.
type Starter interface {
	EnsureStarted(ctx context.Context) (*backend.Process, error)
}

// Bridge dispatches requests to the backend listening on addr.
type Bridge struct {
	starter Starter
	addr    string
	client  *http.Client
	logger  *logrus.Entry
}

type Option func(b *Bridge)

// WithClient replaces the HTTP client used to reach the backend.
func WithClient(c *http.Client) Option {
	return func(b *Bridge) {
		b.client = c
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// New returns a Bridge that starts the backend through starter and talks to
// it at addr.
func New(starter Starter, addr string, opts ...Option) *Bridge {
	b := &Bridge{
		starter: starter,
		addr:    addr,
		client:  newBackendClient(),
		logger:  logrus.WithField("component", "bridge"),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// newBackendClient never follows redirects and never decodes gzip, so the
// backend's response reaches the caller as written. There is no timeout; the
// invocation context bounds the request.
func newBackendClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: nil,
			DialContext: (&net.Dialer{
				KeepAlive: 30 * time.Second,
			}).DialContext,
			DisableCompression: true,
			MaxIdleConns:       10,
			IdleConnTimeout:    90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Query makes sure the backend is up and relays req to it. Only a failed
// backend startup is returned as an error; transport failures become a 500
// response carrying the error text.
func (b *Bridge) Query(ctx context.Context, req *Request) (*Response, error) {
	if _, err := b.starter.EnsureStarted(ctx); err != nil {
		return nil, err
	}

	target := DispatchURL(b.addr, req.Filename, req.URI)
	log := b.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"uri":    req.URI,
		"path":   target.RequestURI(),
	})
	log.Debug("Querying PHP built-in server")

	httpReq, err := b.newRequest(ctx, req, target)
	if err != nil {
		log.WithError(err).Error("Failed to build backend request")
		return transportFailure(err), nil
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		log.WithError(err).Error("PHP built-in server HTTP errored")
		return transportFailure(err), nil
	}
	defer resp.Body.Close()

	// an empty response still yields a non-nil body
	body := bytes.NewBuffer(make([]byte, 0))
	if _, err := io.Copy(body, resp.Body); err != nil {
		log.WithError(err).Error("PHP built-in server HTTP errored")
		return transportFailure(err), nil
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	headers := resp.Header
	if headers == nil {
		headers = http.Header{}
	}

	log.WithFields(logrus.Fields{
		"status_code":   status,
		"response_size": body.Len(),
	}).Debug("PHP built-in server responded")

	return &Response{
		StatusCode: status,
		Headers:    headers,
		Body:       body.Bytes(),
	}, nil
}

func (b *Bridge) newRequest(ctx context.Context, req *Request, target *url.URL) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	if req.Headers != nil {
		httpReq.Header = req.Headers.Clone()
		if host := req.Headers.Get("Host"); host != "" {
			httpReq.Host = host
		}
	}
	return httpReq, nil
}

// DispatchURL addresses filename on the backend at addr, carrying the query
// string of uri if it has one. filename is a filesystem path and is escaped
// as a whole, so characters such as '%', '#' and '?' stay part of it.
// Scheme, host, path and fragment of uri are ignored.
func DispatchURL(addr, filename, uri string) *url.URL {
	u := &url.URL{Scheme: "http", Host: addr, Path: filename}
	u.RawQuery, u.ForceQuery = DispatchQuery(uri)
	return u
}

// DispatchQuery returns the raw query of uri and whether uri ends in a bare
// '?'. An unparsable uri has no query.
func DispatchQuery(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	return u.RawQuery, u.ForceQuery && u.RawQuery == ""
}

func transportFailure(err error) *Response {
	return &Response{
		StatusCode: http.StatusInternalServerError,
		Headers:    http.Header{},
		Body:       []byte(fmt.Sprintf("PHP Built-In Server HTTP error: %v", err)),
	}
}
