package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borrowbook/borrowbook/internal/serviceerr"
	"github.com/borrowbook/borrowbook/pkg/borrowbook"
)

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name      string
		pageIndex int
		pageSize  int
		want      borrowbook.Page[int]
	}{
		{
			name: "first page", pageIndex: 1, pageSize: 2,
			want: borrowbook.Page[int]{Items: []int{1, 2}, PageIndex: 1, TotalPages: 3, TotalCount: 5, HasNextPage: true},
		},
		{
			name: "last partial page", pageIndex: 3, pageSize: 2,
			want: borrowbook.Page[int]{Items: []int{5}, PageIndex: 3, TotalPages: 3, TotalCount: 5, HasPreviousPage: true},
		},
		{
			name: "past the end", pageIndex: 9, pageSize: 2,
			want: borrowbook.Page[int]{Items: []int{}, PageIndex: 9, TotalPages: 3, TotalCount: 5, HasPreviousPage: true},
		},
		{
			name: "defaults", pageIndex: 0, pageSize: 0,
			want: borrowbook.Page[int]{Items: []int{1, 2, 3, 4, 5}, PageIndex: 1, TotalPages: 1, TotalCount: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paginate(items, tt.pageIndex, tt.pageSize))
		})
	}
}

func TestPaginate_Empty(t *testing.T) {
	page := paginate[string](nil, 1, 10)

	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.TotalPages)
	assert.False(t, page.HasNextPage)
}

func TestPaginate_MaxPageSize(t *testing.T) {
	items := make([]int, 250)

	page := paginate(items, 1, 1000)
	assert.Len(t, page.Items, maxPageSize)
	assert.Equal(t, 3, page.TotalPages)
}

func newTestLibrary() *library {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return newLibrary(func() time.Time { return now })
}

func TestLibrary_Propose(t *testing.T) {
	l := newTestLibrary()
	l.ensureUser("alice", false)
	l.ensureUser("bob", false)

	book, err := l.addBook("alice", borrowbook.NewBook{Title: "Dune"})
	require.NoError(t, err)

	meeting := time.Date(2025, 5, 3, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		borrower string
		proposal borrowbook.Proposal
		wantErr  error
	}{
		{
			name:     "location too short",
			borrower: "bob",
			proposal: borrowbook.Proposal{Username: "alice", BookID: book.UserBookID, MeetingTime: meeting, Location: "<a>"},
			wantErr:  serviceerr.ErrInvalidRequest,
		},
		{
			name:     "missing meeting",
			borrower: "bob",
			proposal: borrowbook.Proposal{Username: "alice", BookID: book.UserBookID, Location: "Library"},
			wantErr:  serviceerr.ErrInvalidRequest,
		},
		{
			name:     "wrong owner",
			borrower: "bob",
			proposal: borrowbook.Proposal{Username: "carol", BookID: book.UserBookID, MeetingTime: meeting, Location: "Library"},
			wantErr:  serviceerr.ErrNotFound,
		},
		{
			name:     "own book",
			borrower: "alice",
			proposal: borrowbook.Proposal{Username: "alice", BookID: book.UserBookID, MeetingTime: meeting, Location: "Library"},
			wantErr:  serviceerr.ErrInvalidRequest,
		},
		{
			name:     "accepted",
			borrower: "bob",
			proposal: borrowbook.Proposal{Username: "alice", BookID: book.UserBookID, MeetingTime: meeting, Location: "<b>Library</b>"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := l.propose(tt.borrower, tt.proposal)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "bLibrary/b", req.Location)
			assert.Equal(t, borrowbook.RequestPending, req.Status)
			assert.Equal(t, "Dune", req.BookTitle)
		})
	}
}

func TestLibrary_DeleteUser(t *testing.T) {
	l := newTestLibrary()
	l.ensureUser("alice", false)
	l.ensureUser("bob", false)

	dune, err := l.addBook("alice", borrowbook.NewBook{Title: "Dune"})
	require.NoError(t, err)
	emma, err := l.addBook("bob", borrowbook.NewBook{Title: "Emma"})
	require.NoError(t, err)

	req, err := l.requestBorrow("alice", emma.UserBookID)
	require.NoError(t, err)
	_, err = l.accept("bob", req.ID)
	require.NoError(t, err)
	_, err = l.requestBorrow("bob", dune.UserBookID)
	require.NoError(t, err)

	require.NoError(t, l.deleteUser("alice"))

	_, err = l.user("alice")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)

	books, err := l.booksOf("bob")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, borrowbook.BookAvailable, books[0].Status)

	assert.Empty(t, l.incoming("bob", 1, 10).Items)
	assert.Empty(t, l.requests)
	assert.ErrorIs(t, l.deleteUser("alice"), serviceerr.ErrNotFound)
}

func TestLibrary_EnsureUserPromotesAdmin(t *testing.T) {
	l := newTestLibrary()

	assert.Equal(t, roleUser, l.ensureUser("alice", false).Role)
	assert.Equal(t, roleAdmin, l.ensureUser("alice", true).Role)
	assert.Equal(t, roleAdmin, l.ensureUser("alice", false).Role)
}
