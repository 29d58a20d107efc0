package borrowbook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/borrowbook/borrowbook/internal/serviceerr"
)

// AdminClient requires a user with the admin role.
type AdminClient struct {
	client *Client
}

func (c *AdminClient) ListUsers(ctx context.Context, pageIndex, pageSize int) (Page[AdminUser], error) {
	q := url.Values{}
	q.Set("pageIndex", strconv.Itoa(pageIndex))
	q.Set("pageSize", strconv.Itoa(pageSize))

	return call[Page[AdminUser]](ctx, c.client, http.MethodGet, "/api/admin/users?"+q.Encode(), nil)
}

func (c *AdminClient) DeleteUser(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username: %w", serviceerr.ErrInvalidRequest)
	}

	return c.client.exec(ctx, http.MethodDelete, "/api/admin/users/"+url.PathEscape(username), nil)
}
