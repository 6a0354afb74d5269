// Package transport performs the HTTP legwork for mapweave: capabilities
// documents as text, tile bodies as bytes, with TLS verification off,
// redirect following, tight connect timeouts, a download speed floor, and
// error classification that tells the engine which failures are worth a
// proxy retry.
package transport

import (
	"bytes"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const (
	connectTimeout = 5 * time.Second
	lowSpeedLimit  = 5000 // bytes per second
	lowSpeedTime   = 10 * time.Second
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCouldNotConnect
	KindTimeout
	KindDNSFailure
	KindProxyResolve
	KindSendRecv
	KindSSLHandshake
	KindBadURL
	KindUnsupportedProtocol
	KindHTTPStatus
	KindContentLengthMismatch
	KindServerHTMLError
	KindXMLBody
	KindEmptyBody
)

// Error is a classified transport failure. Tag carries the short
// user-facing form.
type Error struct {
	Kind ErrorKind
	Tag  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Tag
	}
	return e.Tag + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsNetwork reports whether the failure is one of the network classes that
// justify retrying through a proxy: connect, timeout, DNS, proxy
// resolution, send/recv.
func (e *Error) IsNetwork() bool {
	switch e.Kind {
	case KindCouldNotConnect, KindTimeout, KindDNSFailure, KindProxyResolve, KindSendRecv:
		return true
	}
	return false
}

// AsError extracts a classified *Error from err when present.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Proxy configures the fallback proxy with optional basic auth.
type Proxy struct {
	URL      string
	UserName string
	Password string
}

// Empty reports whether no proxy is configured.
func (p *Proxy) Empty() bool { return p == nil || p.URL == "" }

func (p *Proxy) empty() bool { return p.Empty() }

func (p *Proxy) proxyFunc() (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, &Error{Kind: KindProxyResolve, Tag: "Wrong URL", Err: err}
	}
	if p.UserName != "" || p.Password != "" {
		u.User = url.UserPassword(p.UserName, p.Password)
	}
	return http.ProxyURL(u), nil
}

// Client issues classified HTTP requests.
type Client struct {
	// UserAgent is sent when non-empty.
	UserAgent string
}

func newHTTPClient(proxy *Proxy) (*retryablehttp.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
	}
	if !proxy.empty() {
		fn, err := proxy.proxyFunc()
		if err != nil {
			return nil, err
		}
		transport.Proxy = fn
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 1
	client.HTTPClient = &http.Client{
		Transport: transport,
		// Redirects are followed by default; cap them like a browser.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
	return client, nil
}

// GetText downloads url as a UTF-8 string, retrying once through the proxy
// on any failure when one is configured.
func (c *Client) GetText(rawURL string, proxy *Proxy) (int, string, error) {
	if rawURL == "" {
		return 0, "", &Error{Kind: KindBadURL, Tag: "Empty url"}
	}
	status, body, err := c.get(rawURL, nil)
	if err == nil {
		return status, string(body), nil
	}
	if proxy.empty() {
		return status, "", err
	}
	status, body, perr := c.get(rawURL, proxy)
	if perr != nil {
		return status, "", perr
	}
	return status, string(body), nil
}

// GetBinary downloads url as bytes. The declared Content-Length is
// returned when the server sent one (-1 otherwise); a mismatch against the
// received byte count is classified. No proxy fallback happens here: the
// engine owns that policy per tile.
func (c *Client) GetBinary(rawURL string, proxy *Proxy) ([]byte, int64, error) {
	if rawURL == "" {
		return nil, -1, &Error{Kind: KindBadURL, Tag: "Empty url"}
	}
	body, declared, err := c.getWithLength(rawURL, proxy)
	if err != nil {
		return nil, declared, err
	}
	if declared >= 0 && declared != int64(len(body)) {
		return nil, declared, &Error{Kind: KindContentLengthMismatch, Tag: "Error image data length"}
	}
	return body, declared, nil
}

func (c *Client) get(rawURL string, proxy *Proxy) (int, []byte, error) {
	body, _, err := c.getWithLength(rawURL, proxy)
	if err != nil {
		var te *Error
		if errors.As(err, &te) && te.Kind == KindHTTPStatus {
			return statusOf(err), nil, err
		}
		return 0, nil, err
	}
	return http.StatusOK, body, nil
}

func statusOf(err error) int {
	var te *Error
	if errors.As(err, &te) {
		if se, ok := te.Err.(*statusError); ok {
			return se.code
		}
	}
	return 0
}

type statusError struct {
	code int
}

func (s *statusError) Error() string {
	return http.StatusText(s.code)
}

func (c *Client) getWithLength(rawURL string, proxy *Proxy) ([]byte, int64, error) {
	client, err := newHTTPClient(proxy)
	if err != nil {
		return nil, -1, err
	}
	defer client.HTTPClient.CloseIdleConnections()

	req, err := retryablehttp.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, -1, &Error{Kind: KindBadURL, Tag: "Wrong URL", Err: err}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, -1, classify(err)
	}
	defer res.Body.Close()

	declared := res.ContentLength
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, declared, &Error{Kind: KindHTTPStatus, Tag: "HTTP error", Err: &statusError{code: res.StatusCode}}
	}

	var buf bytes.Buffer
	if err := copyWithSpeedFloor(&buf, res.Body); err != nil {
		return nil, declared, classify(err)
	}
	return buf.Bytes(), declared, nil
}

// copyWithSpeedFloor streams src into dst, failing when less than
// lowSpeedLimit bytes per second arrive over a lowSpeedTime window.
func copyWithSpeedFloor(dst *bytes.Buffer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	windowStart := time.Now()
	windowBytes := int64(0)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			dst.Write(buf[:n])
			windowBytes += int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if elapsed := time.Since(windowStart); elapsed >= lowSpeedTime {
			if windowBytes < int64(lowSpeedLimit)*int64(lowSpeedTime/time.Second) {
				return &Error{Kind: KindTimeout, Tag: "Operation timeout",
					Err: errors.Errorf("transfer below %d B/s for %s", lowSpeedLimit, lowSpeedTime)}
			}
			windowStart = time.Now()
			windowBytes = 0
		}
	}
}

// classify maps a transport error onto the taxonomy.
func classify(err error) error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindDNSFailure, Tag: "Wrong URL", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Tag: "Operation timeout", Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		msg := urlErr.Err.Error()
		switch {
		case strings.Contains(msg, "unsupported protocol scheme"):
			return &Error{Kind: KindUnsupportedProtocol, Tag: "Unsupported protocol", Err: err}
		case strings.Contains(msg, "tls") || strings.Contains(msg, "x509") || strings.Contains(msg, "certificate"):
			return &Error{Kind: KindSSLHandshake, Tag: "SSL connect error", Err: err}
		case strings.Contains(msg, "proxyconnect"):
			return &Error{Kind: KindProxyResolve, Tag: "Connect failed", Err: err}
		case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no route to host") ||
			strings.Contains(msg, "network is unreachable"):
			return &Error{Kind: KindCouldNotConnect, Tag: "Connect failed", Err: err}
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no route to host"):
		return &Error{Kind: KindCouldNotConnect, Tag: "Connect failed", Err: err}
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"), strings.Contains(msg, "EOF"):
		return &Error{Kind: KindSendRecv, Tag: "Network error", Err: err}
	case strings.Contains(msg, "tls"), strings.Contains(msg, "x509"):
		return &Error{Kind: KindSSLHandshake, Tag: "SSL connect error", Err: err}
	}
	return &Error{Kind: KindUnknown, Tag: "Unknown error", Err: err}
}

// SniffBody inspects a successful tile body the way the engine needs: a
// short HTML page is a disguised server error, an XML body is a service
// exception instead of an image.
func SniffBody(body []byte) error {
	if len(body) == 0 {
		return &Error{Kind: KindEmptyBody, Tag: "Empty image data"}
	}
	if len(body) <= 1024 {
		head := strings.ToLower(string(body[:min(64, len(body))]))
		if strings.HasPrefix(head, "<html") || strings.HasPrefix(head, "<!doctype") {
			return &Error{Kind: KindServerHTMLError, Tag: "Network error"}
		}
	}
	if bytes.HasPrefix(body, []byte("<?xml")) {
		return &Error{Kind: KindXMLBody, Tag: "Received XML instead of image data"}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
