package xsrf

import (
	"net/http"
	"net/url"
)

// CookieReader is the read side of a cookie store. The client never writes
// cookies itself; the store is updated by Set-Cookie headers of the responses.
type CookieReader interface {
	Cookie(u *url.URL, name string) (string, bool)
}

// JarReader adapts a plain http.CookieJar to CookieReader.
type JarReader struct {
	Jar http.CookieJar
}

func (r JarReader) Cookie(u *url.URL, name string) (string, bool) {
	if r.Jar == nil {
		return "", false
	}

	for _, c := range r.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value, true
		}
	}

	return "", false
}

// readToken returns the decoded csrf token visible for u, or "" when it is
// absent or not decodable.
func readToken(cookies CookieReader, u *url.URL) string {
	raw, ok := cookies.Cookie(u, CookieName)
	if !ok || raw == "" {
		return ""
	}

	// '+' is a literal plus in cookie values, not an encoded space.
	token, err := url.PathUnescape(raw)
	if err != nil {
		return ""
	}

	return token
}
