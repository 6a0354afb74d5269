package ogc

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mapweave/mapweave/pkg/transport"
)

// FetchCapabilities downloads the Capabilities XML for a service URL,
// adding the GetCapabilities KVP parameters for WMS-looking URLs and
// salvaging documents some servers wrap in an HTML shell.
func FetchCapabilities(client *transport.Client, rawURL string, proxy *transport.Proxy) (string, error) {
	if rawURL == "" {
		return "", errors.New("Empty url")
	}

	requestURL := rawURL
	if !isWmtsURL(rawURL) {
		requestURL = addQueryParam(requestURL, "Service", "WMS")
		requestURL = addQueryParam(requestURL, "Request", "GetCapabilities")
	}

	_, body, err := client.GetText(requestURL, proxy)
	if err != nil {
		return "", err
	}

	// A few providers return the XML inside an HTML error shell; cut to
	// the capabilities element when one is present.
	lower := strings.ToLower(body)
	if strings.HasPrefix(lower, "<html>") || strings.HasPrefix(lower, "<html ") {
		if idx := strings.Index(body, "<Capabilities"); idx >= 0 {
			body = body[idx:]
		}
	}
	return body, nil
}

// isWmtsURL detects URLs that already address a WMTS endpoint, which must
// not get WMS KVP parameters appended.
func isWmtsURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "service=wmts") || strings.Contains(lower, "/wmtscapabilities.xml")
}
