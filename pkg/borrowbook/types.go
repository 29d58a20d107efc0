package borrowbook

import "time"

type BookStatus string

const (
	BookAvailable BookStatus = "AVAILABLE"
	BookBorrowed  BookStatus = "BORROWED"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
)

// Page is one page of a paginated listing. PageIndex starts at 1.
type Page[T any] struct {
	Items           []T  `json:"items"`
	PageIndex       int  `json:"pageIndex"`
	TotalPages      int  `json:"totalPages"`
	TotalCount      int  `json:"totalCount"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

type AdminUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SearchResult is a copy of a book owned by another user.
type SearchResult struct {
	UserBookID int64      `json:"userBookId"`
	Title      string     `json:"title"`
	Authors    []string   `json:"authors,omitempty"`
	Publisher  string     `json:"publisher,omitempty"`
	ImageLink  string     `json:"imageLink,omitempty"`
	Status     BookStatus `json:"status"`
	Username   string     `json:"username"`
}

// UserBook is a copy of a book in a user's collection.
type UserBook struct {
	UserBookID int64      `json:"userBookId"`
	Title      string     `json:"title"`
	Authors    []string   `json:"authors,omitempty"`
	Publisher  string     `json:"publisher,omitempty"`
	ImageLink  string     `json:"imageLink,omitempty"`
	Status     BookStatus `json:"status"`
	Pending    bool       `json:"pending,omitempty"`
}

type NewBook struct {
	GoogleBookID string   `json:"googleBookId,omitempty"`
	Title        string   `json:"title"`
	Authors      []string `json:"authors,omitempty"`
	Publisher    string   `json:"publisher,omitempty"`
	ImageLink    string   `json:"imageLink,omitempty"`
}

// Proposal asks the owner of a book for a meeting to hand it over.
type Proposal struct {
	Username    string    `json:"username"`
	BookID      int64     `json:"bookId"`
	CreatedAt   time.Time `json:"created_at"`
	MeetingTime time.Time `json:"meetingTime"`
	Location    string    `json:"location"`
}

type BorrowRequest struct {
	ID               int64         `json:"id"`
	BorrowerUsername string        `json:"borrowerUsername"`
	BookTitle        string        `json:"bookTitle"`
	MeetingTime      time.Time     `json:"meetingTime"`
	Location         string        `json:"location"`
	DueDate          *time.Time    `json:"dueDate,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	Status           RequestStatus `json:"status"`
}
