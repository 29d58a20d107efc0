package devserver

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/borrowbook/borrowbook/internal/serviceerr"
	"github.com/borrowbook/borrowbook/pkg/borrowbook"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	loanPeriod      = 14 * 24 * time.Hour
)

const (
	roleUser  = "USER"
	roleAdmin = "ADMIN"
)

type user struct {
	username string
	email    string
	role     string
}

type userBook struct {
	id       int64
	owner    string
	borrower string
	book     borrowbook.NewBook
	status   borrowbook.BookStatus
}

type borrowRequest struct {
	id          int64
	bookID      int64
	borrower    string
	meetingTime time.Time
	location    string
	createdAt   time.Time
	dueDate     *time.Time
	status      borrowbook.RequestStatus
}

// library is the in-memory state of the development backend.
type library struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]*user
	books    map[int64]*userBook
	requests map[int64]*borrowRequest
	nextID   int64
}

func newLibrary(now func() time.Time) *library {
	return &library{
		now:      now,
		users:    make(map[string]*user),
		books:    make(map[int64]*userBook),
		requests: make(map[int64]*borrowRequest),
	}
}

func (l *library) id() int64 {
	l.nextID++
	return l.nextID
}

// ensureUser registers username on first login.
func (l *library) ensureUser(username string, admin bool) borrowbook.User {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[username]
	if !ok {
		u = &user{username: username, email: username + "@borrowbook.local", role: roleUser}
		l.users[username] = u
	}
	if admin {
		u.role = roleAdmin
	}

	return borrowbook.User{Username: u.username, Email: u.email, Role: u.role}
}

func (l *library) user(username string) (borrowbook.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[username]
	if !ok {
		return borrowbook.User{}, serviceerr.ErrNotFound.WithDescription("user " + username + " not found")
	}

	return borrowbook.User{Username: u.username, Email: u.email, Role: u.role}, nil
}

func (l *library) addBook(owner string, nb borrowbook.NewBook) (borrowbook.UserBook, error) {
	nb.Title = strings.TrimSpace(nb.Title)
	if nb.Title == "" {
		return borrowbook.UserBook{}, serviceerr.ErrInvalidRequest.WithDescription("title is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.users[owner]; !ok {
		return borrowbook.UserBook{}, serviceerr.ErrNotFound.WithDescription("user " + owner + " not found")
	}

	for _, b := range l.books {
		if b.owner == owner && nb.GoogleBookID != "" && b.book.GoogleBookID == nb.GoogleBookID {
			return borrowbook.UserBook{}, serviceerr.ErrConflict.WithDescription("book already in collection")
		}
	}

	b := &userBook{id: l.id(), owner: owner, book: nb, status: borrowbook.BookAvailable}
	l.books[b.id] = b

	return l.userBookView(b), nil
}

// search finds books of other users whose title contains title.
func (l *library) search(viewer, title string, pageIndex, pageSize int) borrowbook.Page[borrowbook.SearchResult] {
	needle := strings.ToLower(strings.TrimSpace(title))

	l.mu.Lock()
	defer l.mu.Unlock()

	var results []borrowbook.SearchResult
	for _, b := range l.sortedBooks() {
		if b.owner == viewer || !strings.Contains(strings.ToLower(b.book.Title), needle) {
			continue
		}
		results = append(results, borrowbook.SearchResult{
			UserBookID: b.id,
			Title:      b.book.Title,
			Authors:    b.book.Authors,
			Publisher:  b.book.Publisher,
			ImageLink:  b.book.ImageLink,
			Status:     b.status,
			Username:   b.owner,
		})
	}

	return paginate(results, pageIndex, pageSize)
}

func (l *library) booksOf(username string) ([]borrowbook.UserBook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.users[username]; !ok {
		return nil, serviceerr.ErrInvalidRequest.WithDescription("unknown user " + username)
	}

	return l.collect(func(b *userBook) bool { return b.owner == username }), nil
}

func (l *library) borrowedBy(username string) []borrowbook.UserBook {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.collect(func(b *userBook) bool { return b.borrower == username })
}

// requestBorrow opens a pending request without meeting details.
func (l *library) requestBorrow(borrower string, bookID int64) (borrowbook.BorrowRequest, error) {
	return l.openRequest(borrower, "", bookID, time.Time{}, "")
}

func (l *library) propose(borrower string, p borrowbook.Proposal) (borrowbook.BorrowRequest, error) {
	location := borrowbook.SanitizeLocation(p.Location)
	if n := len([]rune(location)); n < 3 || n > 128 {
		return borrowbook.BorrowRequest{}, serviceerr.ErrInvalidRequest.WithDescription("location must be between 3 and 128 characters")
	}
	if p.MeetingTime.IsZero() {
		return borrowbook.BorrowRequest{}, serviceerr.ErrInvalidRequest.WithDescription("meetingTime is required")
	}

	return l.openRequest(borrower, p.Username, p.BookID, p.MeetingTime, location)
}

func (l *library) openRequest(borrower, owner string, bookID int64, meeting time.Time, location string) (borrowbook.BorrowRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.books[bookID]
	if !ok || (owner != "" && b.owner != owner) {
		return borrowbook.BorrowRequest{}, serviceerr.ErrNotFound.WithDescription("book not found")
	}
	if b.owner == borrower {
		return borrowbook.BorrowRequest{}, serviceerr.ErrInvalidRequest.WithDescription("cannot borrow your own book")
	}
	if b.status != borrowbook.BookAvailable {
		return borrowbook.BorrowRequest{}, serviceerr.ErrConflict.WithDescription("book is not available")
	}
	for _, r := range l.requests {
		if r.bookID == bookID && r.borrower == borrower && r.status == borrowbook.RequestPending {
			return borrowbook.BorrowRequest{}, serviceerr.ErrConflict.WithDescription("request already pending")
		}
	}

	r := &borrowRequest{
		id:          l.id(),
		bookID:      bookID,
		borrower:    borrower,
		meetingTime: meeting.UTC(),
		location:    location,
		createdAt:   l.now().UTC(),
		status:      borrowbook.RequestPending,
	}
	l.requests[r.id] = r

	return l.requestView(r), nil
}

// incoming lists requests on books owned by owner, newest first.
func (l *library) incoming(owner string, page, size int) borrowbook.Page[borrowbook.BorrowRequest] {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*borrowRequest
	for _, r := range l.requests {
		if b, ok := l.books[r.bookID]; ok && b.owner == owner {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b *borrowRequest) int {
		if c := b.createdAt.Compare(a.createdAt); c != 0 {
			return c
		}
		return cmp.Compare(b.id, a.id)
	})

	views := make([]borrowbook.BorrowRequest, 0, len(out))
	for _, r := range out {
		views = append(views, l.requestView(r))
	}

	return paginate(views, page, size)
}

// accept lends the book to the borrower and rejects competing requests.
func (l *library) accept(owner string, requestID int64) (borrowbook.BorrowRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, b, err := l.pendingRequestOf(owner, requestID)
	if err != nil {
		return borrowbook.BorrowRequest{}, err
	}

	due := l.now().Add(loanPeriod).UTC()
	r.status = borrowbook.RequestAccepted
	r.dueDate = &due
	b.status = borrowbook.BookBorrowed
	b.borrower = r.borrower

	for _, other := range l.requests {
		if other.bookID == b.id && other.id != r.id && other.status == borrowbook.RequestPending {
			other.status = borrowbook.RequestRejected
		}
	}

	return l.requestView(r), nil
}

func (l *library) reject(owner string, requestID int64) (borrowbook.BorrowRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, _, err := l.pendingRequestOf(owner, requestID)
	if err != nil {
		return borrowbook.BorrowRequest{}, err
	}
	r.status = borrowbook.RequestRejected

	return l.requestView(r), nil
}

func (l *library) listUsers(pageIndex, pageSize int) borrowbook.Page[borrowbook.AdminUser] {
	l.mu.Lock()
	defer l.mu.Unlock()

	users := make([]borrowbook.AdminUser, 0, len(l.users))
	for _, u := range l.users {
		users = append(users, borrowbook.AdminUser{Username: u.username, Email: u.email})
	}
	slices.SortFunc(users, func(a, b borrowbook.AdminUser) int { return strings.Compare(a.Username, b.Username) })

	return paginate(users, pageIndex, pageSize)
}

// deleteUser removes the user together with their books and requests.
func (l *library) deleteUser(username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.users[username]; !ok {
		return serviceerr.ErrNotFound.WithDescription("user " + username + " not found")
	}
	delete(l.users, username)

	for id, b := range l.books {
		if b.owner == username {
			delete(l.books, id)
			continue
		}
		if b.borrower == username {
			b.borrower = ""
			b.status = borrowbook.BookAvailable
		}
	}
	for id, r := range l.requests {
		if _, ok := l.books[r.bookID]; !ok || r.borrower == username {
			delete(l.requests, id)
		}
	}

	return nil
}

func (l *library) pendingRequestOf(owner string, requestID int64) (*borrowRequest, *userBook, error) {
	r, ok := l.requests[requestID]
	if !ok {
		return nil, nil, serviceerr.ErrNotFound.WithDescription("request not found")
	}
	b, ok := l.books[r.bookID]
	if !ok || b.owner != owner {
		return nil, nil, serviceerr.ErrNotFound.WithDescription("request not found")
	}
	if r.status != borrowbook.RequestPending {
		return nil, nil, serviceerr.ErrConflict.WithDescription("request is " + string(r.status))
	}

	return r, b, nil
}

func (l *library) sortedBooks() []*userBook {
	books := make([]*userBook, 0, len(l.books))
	for _, b := range l.books {
		books = append(books, b)
	}
	slices.SortFunc(books, func(a, b *userBook) int { return cmp.Compare(a.id, b.id) })

	return books
}

func (l *library) collect(keep func(*userBook) bool) []borrowbook.UserBook {
	out := []borrowbook.UserBook{}
	for _, b := range l.sortedBooks() {
		if keep(b) {
			out = append(out, l.userBookView(b))
		}
	}

	return out
}

func (l *library) userBookView(b *userBook) borrowbook.UserBook {
	pending := false
	for _, r := range l.requests {
		if r.bookID == b.id && r.status == borrowbook.RequestPending {
			pending = true
			break
		}
	}

	return borrowbook.UserBook{
		UserBookID: b.id,
		Title:      b.book.Title,
		Authors:    b.book.Authors,
		Publisher:  b.book.Publisher,
		ImageLink:  b.book.ImageLink,
		Status:     b.status,
		Pending:    pending,
	}
}

func (l *library) requestView(r *borrowRequest) borrowbook.BorrowRequest {
	var title string
	if b, ok := l.books[r.bookID]; ok {
		title = b.book.Title
	}

	return borrowbook.BorrowRequest{
		ID:               r.id,
		BorrowerUsername: r.borrower,
		BookTitle:        title,
		MeetingTime:      r.meetingTime,
		Location:         r.location,
		DueDate:          r.dueDate,
		CreatedAt:        r.createdAt,
		Status:           r.status,
	}
}

// paginate slices items into 1-based pages.
func paginate[T any](items []T, pageIndex, pageSize int) borrowbook.Page[T] {
	if pageIndex < 1 {
		pageIndex = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize

	start := min((pageIndex-1)*pageSize, total)
	end := min(start+pageSize, total)

	page := borrowbook.Page[T]{
		Items:           append([]T{}, items[start:end]...),
		PageIndex:       pageIndex,
		TotalPages:      totalPages,
		TotalCount:      total,
		HasNextPage:     pageIndex < totalPages,
		HasPreviousPage: pageIndex > 1,
	}

	return page
}
