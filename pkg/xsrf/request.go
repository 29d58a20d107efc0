package xsrf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Credentials controls whether cookies from the jar are sent with a request.
type Credentials int

const (
	// CredentialsInclude sends and stores cookies. It is the default.
	CredentialsInclude Credentials = iota
	// CredentialsOmit sends the request without consulting the cookie jar.
	CredentialsOmit
)

// Request describes one outbound call. The client never modifies it.
//
// Body may be nil, a string or []byte (sent verbatim), a json.RawMessage, an
// io.Reader (read fully so it can be replayed) or any value that is encoded
// as JSON.
type Request struct {
	Method      string
	Header      http.Header
	Body        any
	Credentials Credentials
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		return data, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshaling json: %w", err)
		}
		return data, nil
	}
}

// newRequest builds the wire request. Header precedence, lowest first: the
// JSON content type default, the caller's headers, the csrf header.
func (c *Client) newRequest(ctx context.Context, method string, target *url.URL, header http.Header, body []byte, token string) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		req.Header[textproto.CanonicalMIMEHeaderKey(key)] = slices.Clone(values)
	}
	req.Header.Set(HeaderName, token)

	c.decorate(ctx, req)

	return req, nil
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
