package borrowbook

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/borrowbook/borrowbook/pkg/xsrf"
)

const (
	DefaultProvider = "google"
	LogoutPath      = "/api/v1/auth/logout"
)

type AuthClient struct {
	client *Client
}

// LoginURL is the page that starts the OAuth2 login with provider. It has to
// be opened in a browser; the session cookies it sets can then be imported.
func (c *AuthClient) LoginURL(provider string) string {
	if provider == "" {
		provider = DefaultProvider
	}

	return strings.TrimSuffix(c.client.doer.BaseURL(), "/") + "/oauth2/authorization/" + url.PathEscape(provider)
}

// Authorize follows the login flow of provider without a browser. Only
// providers that accept their credentials in query, like the development
// backend, can be used this way. The session cookies land in the jar.
func (c *AuthClient) Authorize(ctx context.Context, provider string, query url.Values) error {
	target := c.LoginURL(provider)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if err := c.client.exec(ctx, http.MethodGet, target, nil); err != nil {
		return err
	}

	slogctx.Info(ctx, "Logged in", "provider", provider)

	return nil
}

// Logout ends the session on the backend. A rejected or already expired
// session counts as logged out. Once logged out the local csrf cookie is
// cleared.
func (c *AuthClient) Logout(ctx context.Context) error {
	err := c.client.exec(ctx, http.MethodPost, LogoutPath, nil)

	var apiErr *APIError
	switch {
	case err == nil:
	case errors.Is(err, xsrf.ErrUnauthorized):
		slogctx.Debug(ctx, "Session already gone at logout", "error", err)
	case errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden):
		slogctx.Debug(ctx, "Logout rejected, treating as logged out", "status", apiErr.Status)
	default:
		return err
	}

	if c.client.cookies != nil {
		base, perr := url.Parse(c.client.doer.BaseURL())
		if perr == nil {
			c.client.cookies.Clear(base, xsrf.CookieName)
		}
	}

	return nil
}
