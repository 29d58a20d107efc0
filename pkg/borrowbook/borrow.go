package borrowbook

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	minLocationLength = 3
	maxLocationLength = 128
)

type BorrowClient struct {
	client *Client
}

// Request asks to borrow the user book with the given id.
func (c *BorrowClient) Request(ctx context.Context, userBookID int64) error {
	return c.client.exec(ctx, http.MethodPost, "/api/borrow/request/"+strconv.FormatInt(userBookID, 10), nil)
}

// Propose sends a meeting proposal to the owner of a book. The location is
// sanitized before it is validated; CreatedAt defaults to now.
func (c *BorrowClient) Propose(ctx context.Context, p Proposal) error {
	p.Location = SanitizeLocation(p.Location)
	if n := utf8.RuneCountInString(p.Location); n < minLocationLength || n > maxLocationLength {
		return ErrInvalidLocation
	}
	if p.MeetingTime.IsZero() {
		return ErrMissingMeeting
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = c.client.now()
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.MeetingTime = p.MeetingTime.UTC()

	return c.client.exec(ctx, http.MethodPost, "/api/book/borrow", p)
}

// Incoming lists borrow requests for books the caller owns.
func (c *BorrowClient) Incoming(ctx context.Context, page, size int) (Page[BorrowRequest], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	return call[Page[BorrowRequest]](ctx, c.client, http.MethodGet, "/api/borrow/incoming?"+q.Encode(), nil)
}

func (c *BorrowClient) Accept(ctx context.Context, requestID int64) error {
	return c.client.exec(ctx, http.MethodPut, "/api/borrow/accept/"+strconv.FormatInt(requestID, 10), nil)
}

func (c *BorrowClient) Reject(ctx context.Context, requestID int64) error {
	return c.client.exec(ctx, http.MethodPut, "/api/borrow/reject/"+strconv.FormatInt(requestID, 10), nil)
}

// SanitizeLocation strips angle brackets and surrounding whitespace.
func SanitizeLocation(s string) string {
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	return strings.TrimSpace(s)
}
