package borrowbook

import (
	"context"
	"net/http"
)

type BooksClient struct {
	client *Client
}

// Add puts a book into the caller's collection.
func (c *BooksClient) Add(ctx context.Context, book NewBook) error {
	return c.client.exec(ctx, http.MethodPost, "/api/book", book)
}

func (c *BooksClient) MyCollection(ctx context.Context) ([]UserBook, error) {
	return call[[]UserBook](ctx, c.client, http.MethodGet, "/api/v1/books/my-collection", nil)
}

func (c *BooksClient) Borrowed(ctx context.Context) ([]UserBook, error) {
	return call[[]UserBook](ctx, c.client, http.MethodGet, "/api/v1/books/borrowed", nil)
}
