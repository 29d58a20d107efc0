// Package borrowbook binds the BorrowBook REST API on top of the xsrf client.
package borrowbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/borrowbook/borrowbook/pkg/xsrf"
)

// Doer is the subset of *xsrf.Client the bindings need.
type Doer interface {
	Do(ctx context.Context, rawURL string, r xsrf.Request) (*http.Response, error)
	BaseURL() string
}

// CookieClearer drops a cookie from the local store. *jar.Jar implements it.
type CookieClearer interface {
	Clear(u *url.URL, name string)
}

type Option func(*Client)

// WithCookieClearer makes Logout forget the local csrf cookie.
func WithCookieClearer(cc CookieClearer) Option {
	return func(c *Client) {
		c.cookies = cc
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

type Client struct {
	doer    Doer
	cookies CookieClearer
	now     func() time.Time

	Users  *UsersClient
	Books  *BooksClient
	Borrow *BorrowClient
	Admin  *AdminClient
	Auth   *AuthClient
}

func NewClient(doer Doer, opts ...Option) *Client {
	c := &Client{
		doer: doer,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Users = &UsersClient{client: c}
	c.Books = &BooksClient{client: c}
	c.Borrow = &BorrowClient{client: c}
	c.Admin = &AdminClient{client: c}
	c.Auth = &AuthClient{client: c}

	return c
}

// call performs the request and decodes a 2xx JSON body into T.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var out T

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}

	return out, nil
}

// exec performs the request and discards a 2xx body.
func (c *Client) exec(ctx context.Context, method, path string, body any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Body.Close()
}

// do returns xsrf errors untouched and turns non-2xx statuses into *APIError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	resp, err := c.doer.Do(ctx, path, xsrf.Request{Method: method, Body: body})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	return resp, nil
}
