// SPDX-License-Identifier: MIT

// Package urlutil masks credentials in URLs before they reach logs.
package urlutil

import (
	"net/url"
	"strings"
)

const redacted = "***"

// SanitizeURL removes user info and query from a URL string for safe logging.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	return parsedURL.String()
}

// RedactStreamKey sanitizes the URL and also replaces the last path segment,
// which is where RTMP ingest endpoints carry the stream key.
// "rtmp://a.rtmp.youtube.com/live2/abcd" becomes "rtmp://a.rtmp.youtube.com/live2/***".
func RedactStreamKey(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return ""
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	parsedURL.Fragment = ""

	path := strings.TrimSuffix(parsedURL.Path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 && idx < len(path)-1 {
		path = path[:idx+1] + redacted
	}
	parsedURL.Path = path
	parsedURL.RawPath = ""

	// url.URL.String escapes '*'; build the tail by hand.
	out := parsedURL.String()
	return strings.ReplaceAll(out, "%2A%2A%2A", redacted)
}
