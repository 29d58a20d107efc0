package borrowbook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/borrowbook/borrowbook/internal/serviceerr"
)

type UsersClient struct {
	client *Client
}

// Me returns the logged in user.
func (c *UsersClient) Me(ctx context.Context) (User, error) {
	return call[User](ctx, c.client, http.MethodGet, "/api/user/me", nil)
}

// Search looks up books of other users by title.
func (c *UsersClient) Search(ctx context.Context, title string, pageIndex, pageSize int) (Page[SearchResult], error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Page[SearchResult]{}, ErrEmptyQuery
	}

	q := url.Values{}
	q.Set("title", title)
	q.Set("pageIndex", strconv.Itoa(pageIndex))
	q.Set("pageSize", strconv.Itoa(pageSize))

	return call[Page[SearchResult]](ctx, c.client, http.MethodGet, "/api/user/search?"+q.Encode(), nil)
}

// Books lists the collection of username. The backend answers 400 for
// unknown users, which is reported as serviceerr.ErrNotFound.
func (c *UsersClient) Books(ctx context.Context, username string) ([]UserBook, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username: %w", serviceerr.ErrInvalidRequest)
	}

	books, err := call[[]UserBook](ctx, c.client, http.MethodGet, "/api/user/books/"+url.PathEscape(username), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			return nil, fmt.Errorf("user %q: %w", username, serviceerr.ErrNotFound)
		}

		return nil, err
	}

	return books, nil
}
