package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetTextOK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<Capabilities/>"))
	}))
	defer ts.Close()

	c := &Client{}
	status, body, err := c.GetText(ts.URL, nil)
	if err != nil {
		t.Fatalf("GetText failed: %v", err)
	}
	if status != http.StatusOK || body != "<Capabilities/>" {
		t.Fatalf("status=%d body=%q", status, body)
	}
}

func TestGetTextEmptyURL(t *testing.T) {
	c := &Client{}
	_, _, err := c.GetText("", nil)
	te, ok := AsError(err)
	if !ok || te.Kind != KindBadURL {
		t.Fatalf("want BadURL, got %v", err)
	}
	if te.Tag != "Empty url" {
		t.Fatalf("tag = %q", te.Tag)
	}
}

func TestGetBinaryFollowsRedirects(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tile" {
			w.Write([]byte{0x89, 'P', 'N', 'G'})
			return
		}
		http.Redirect(w, r, target.URL+"/tile", http.StatusFound)
	}))
	defer target.Close()

	c := &Client{}
	body, _, err := c.GetBinary(target.URL+"/start", nil)
	if err != nil {
		t.Fatalf("GetBinary failed: %v", err)
	}
	if len(body) != 4 || body[1] != 'P' {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestGetBinaryNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer ts.Close()

	c := &Client{}
	_, _, err := c.GetBinary(ts.URL, nil)
	te, ok := AsError(err)
	if !ok || te.Kind != KindHTTPStatus {
		t.Fatalf("want HTTPStatus, got %v", err)
	}
	if te.IsNetwork() {
		t.Fatal("an HTTP status failure is not a network error")
	}
}

func TestClassifyConnectionRefused(t *testing.T) {
	// A closed port refuses the connection.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := &Client{}
	_, _, err := c.GetBinary(url, nil)
	te, ok := AsError(err)
	if !ok {
		t.Fatalf("unclassified error: %v", err)
	}
	if !te.IsNetwork() {
		t.Fatalf("refused connection must classify as a network error, got kind %d", te.Kind)
	}
}

func TestClassifyUnsupportedProtocol(t *testing.T) {
	c := &Client{}
	_, _, err := c.GetBinary("gopher://example.com/tile", nil)
	te, ok := AsError(err)
	if !ok || te.Kind != KindUnsupportedProtocol {
		t.Fatalf("want UnsupportedProtocol, got %v", err)
	}
	if te.IsNetwork() {
		t.Fatal("an unsupported protocol must not trigger a proxy retry")
	}
}

func TestSniffBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind ErrorKind
	}{
		{"empty", "", KindEmptyBody},
		{"short html", "<html><body>forbidden</body></html>", KindServerHTMLError},
		{"doctype", "<!DOCTYPE html><title>err</title>", KindServerHTMLError},
		{"xml exception", `<?xml version="1.0"?><ServiceExceptionReport/>`, KindXMLBody},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := SniffBody([]byte(tc.body))
			te, ok := AsError(err)
			if !ok || te.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", err, tc.kind)
			}
		})
	}

	if err := SniffBody([]byte{0x89, 'P', 'N', 'G', '\r', '\n'}); err != nil {
		t.Fatalf("image bytes misclassified: %v", err)
	}
	// A long HTML page (> 1024 bytes) is not sniffed as a server error.
	long := "<html>" + strings.Repeat("x", 2000)
	if err := SniffBody([]byte(long)); err != nil {
		t.Fatalf("long html misclassified: %v", err)
	}
}

func TestProxyEmpty(t *testing.T) {
	var p *Proxy
	if !p.Empty() {
		t.Fatal("nil proxy must be empty")
	}
	if !(&Proxy{}).Empty() {
		t.Fatal("zero proxy must be empty")
	}
	if (&Proxy{URL: "http://127.0.0.1:8080"}).Empty() {
		t.Fatal("configured proxy must not be empty")
	}
}
