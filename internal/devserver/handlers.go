package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/borrowbook/borrowbook/internal/middleware/principal"
	"github.com/borrowbook/borrowbook/internal/middleware/responsewriter"
	"github.com/borrowbook/borrowbook/internal/serviceerr"
	"github.com/borrowbook/borrowbook/pkg/borrowbook"
	"github.com/borrowbook/borrowbook/pkg/xsrf"
)

const maxBodySize = 1 << 20

// Handler returns the routes of the development backend.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.operations = make(map[string]string)

	s.handle(mux, "GET /ping", "ping", http.HandlerFunc(s.ping))
	s.handle(mux, "GET /{$}", "index", http.HandlerFunc(s.index))

	s.handle(mux, "GET "+xsrf.BootstrapPath, "csrf", http.HandlerFunc(s.issueCSRF))
	s.handle(mux, "POST "+xsrf.RefreshPath, "refresh", s.csrfProtected(http.HandlerFunc(s.refresh)))
	s.handle(mux, "GET /oauth2/authorization/{provider}", "login", http.HandlerFunc(s.login))
	s.handle(mux, "POST "+borrowbook.LogoutPath, "logout", s.csrfProtected(http.HandlerFunc(s.logout)))

	s.handle(mux, "GET /api/user/me", "me", s.authenticated(s.me))
	s.handle(mux, "GET /api/user/search", "search", s.authenticated(s.search))
	s.handle(mux, "GET /api/user/books/{username}", "userBooks", s.authenticated(s.userBooks))

	s.handle(mux, "POST /api/book", "addBook", s.authenticated(s.addBook))
	s.handle(mux, "GET /api/v1/books/my-collection", "myCollection", s.authenticated(s.myCollection))
	s.handle(mux, "GET /api/v1/books/borrowed", "borrowed", s.authenticated(s.borrowed))

	s.handle(mux, "POST /api/borrow/request/{id}", "requestBorrow", s.authenticated(s.requestBorrow))
	s.handle(mux, "POST /api/book/borrow", "proposeBorrow", s.authenticated(s.proposeBorrow))
	s.handle(mux, "GET /api/borrow/incoming", "incoming", s.authenticated(s.incoming))
	s.handle(mux, "PUT /api/borrow/accept/{id}", "acceptBorrow", s.authenticated(s.acceptBorrow))
	s.handle(mux, "PUT /api/borrow/reject/{id}", "rejectBorrow", s.authenticated(s.rejectBorrow))

	s.handle(mux, "GET /api/admin/users", "listUsers", s.authenticated(s.admin(s.listUsers)))
	s.handle(mux, "DELETE /api/admin/users/{username}", "deleteUser", s.authenticated(s.admin(s.deleteUser)))

	return mux
}

// handle registers h with tracing, metrics and a request scoped logger.
func (s *Server) handle(mux *http.ServeMux, pattern, operation string, h http.Handler) {
	traceAttrs := otlp.CreateAttributesFrom(s.app, attribute.String(commoncfg.AttrOperation, operation))
	tracer := otel.Tracer(operation, trace.WithInstrumentationAttributes(traceAttrs...))
	s.operations[pattern] = operation

	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := slogctx.With(r.Context(),
			commoncfg.AttrRequestID, uuid.NewString(),
			commoncfg.AttrOperation, operation,
		)

		parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(parentCtx, operation+"-span", trace.WithAttributes(traceAttrs...))
		defer span.End()

		rec := responsewriter.NewRecorder(w)
		requestStartTime := time.Now()

		defer func() {
			elapsedTime := time.Since(requestStartTime)

			attrs := metric.WithAttributes(
				otlp.CreateAttributesFrom(s.app,
					attribute.String("userAgent", r.UserAgent()),
					attribute.String(commoncfg.AttrOperation, operation),
					attribute.Int("status", rec.Status()),
				)...,
			)

			s.meters.counter.Add(ctx, 1, attrs)
			s.meters.hist.Record(ctx, elapsedTime.Milliseconds(), attrs)
		}()

		slogctx.Debug(ctx, fmt.Sprintf("Processing %s request", operation))
		h.ServeHTTP(rec, r.WithContext(ctx))
		slogctx.Info(ctx, fmt.Sprintf("Finished %s request", operation), "status", rec.Status())
	})
}

// csrfProtected rejects unsafe requests whose X-XSRF-TOKEN header does not
// repeat a csrf cookie issued for the caller's refresh session.
func (s *Server) csrfProtected(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		var cookieValue string
		if c, err := r.Cookie(s.csrfCookie.Name); err == nil {
			cookieValue = c.Value
		}

		header := r.Header.Get(xsrf.HeaderName)
		binding := s.sessionBinding(r)
		if !s.csrf.Check(header, cookieValue, binding) && !s.rotatedCSRF(header, cookieValue, binding) {
			slogctx.Info(r.Context(), "Rejected request with invalid csrf token")
			s.writeError(w, r, serviceerr.ErrInvalidCSRFToken)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rotatedCSRF accepts a header token of the session that was just rotated
// into binding, next to a cookie of the new session. A client that refreshed
// concurrently only knows the previous token.
func (s *Server) rotatedCSRF(header, cookie, binding string) bool {
	prev, ok := s.sessions.predecessor(binding)
	if !ok {
		return false
	}

	return s.csrf.Valid(header, prev) && s.csrf.Valid(cookie, binding)
}

// authenticated requires a valid access token and, for unsafe methods, a
// valid csrf token.
func (s *Server) authenticated(h http.HandlerFunc) http.Handler {
	return s.csrfProtected(principal.Middleware(s.authenticate, s.writeError)(h))
}

func (s *Server) authenticate(r *http.Request) (principal.Principal, error) {
	c, err := r.Cookie(s.accessCookie.Name)
	if err != nil || c.Value == "" {
		return principal.Principal{}, serviceerr.ErrUnauthorized
	}

	username, role, err := s.tokens.verify(c.Value)
	if err != nil {
		slogctx.Debug(r.Context(), "Rejected access token", "error", err)
		return principal.Principal{}, serviceerr.ErrSessionExpired
	}

	return principal.Principal{Username: username, Role: role}, nil
}

func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principal.FromContext(r.Context())
		if err != nil || p.Role != roleAdmin {
			s.writeError(w, r, serviceerr.ErrAccessDenied.WithDescription("admin role required"))
			return
		}

		h(w, r)
	}
}

// sessionBinding is the refresh session a csrf token is bound to; empty
// before login.
func (s *Server) sessionBinding(r *http.Request) string {
	c, err := r.Cookie(s.refreshCookie.Name)
	if err != nil {
		return ""
	}

	return c.Value
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("{ \"result\": \"ping\" }"))
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"result": "BorrowBook development backend"})
}

func (s *Server) issueCSRF(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.csrfCookie.ToCookie(s.csrf.Issue(s.sessionBinding(r))))
	w.WriteHeader(http.StatusNoContent)
}

// login is the development stand-in for an OAuth2 provider: it trusts the
// username query parameter.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("provider") != DevProvider {
		s.writeError(w, r, serviceerr.ErrNotFound.WithDescription("unknown provider "+r.PathValue("provider")))
		return
	}

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		s.writeError(w, r, serviceerr.ErrInvalidRequest.WithDescription("username is required"))
		return
	}

	u := s.library.ensureUser(username, s.admins[username])
	if err := s.startSession(w, u.Username, u.Role); err != nil {
		s.writeError(w, r, err)
		return
	}

	slogctx.Info(r.Context(), "User logged in", "username", username)

	redirect := r.URL.Query().Get("redirect_uri")
	if !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
		redirect = "/"
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(s.refreshCookie.Name)
	if err != nil || c.Value == "" {
		s.writeError(w, r, serviceerr.ErrSessionExpired.WithDescription("no refresh token"))
		return
	}

	sess, ok := s.sessions.rotate(c.Value)
	if !ok {
		s.writeError(w, r, serviceerr.ErrSessionExpired.WithDescription("refresh token expired or already used"))
		return
	}

	u, err := s.library.user(sess.Username)
	if err != nil {
		s.writeError(w, r, serviceerr.ErrSessionExpired.WithDescription("user no longer exists"))
		return
	}

	if err := s.setSessionCookies(w, sess, u.Role); err != nil {
		s.writeError(w, r, err)
		return
	}

	slogctx.Info(r.Context(), "Session refreshed", "username", u.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.refreshCookie.Name); err == nil {
		s.sessions.revoke(c.Value)
	}

	for _, ct := range []*http.Cookie{
		s.accessCookie.ToCookie(""),
		s.refreshCookie.ToCookie(""),
		s.csrfCookie.ToCookie(""),
	} {
		ct.MaxAge = -1
		http.SetCookie(w, ct)
	}

	w.WriteHeader(http.StatusNoContent)
}

// startSession issues a new access token, refresh token and csrf token.
func (s *Server) startSession(w http.ResponseWriter, username, role string) error {
	return s.setSessionCookies(w, s.sessions.create(username), role)
}

func (s *Server) setSessionCookies(w http.ResponseWriter, sess refreshSession, role string) error {
	access, err := s.tokens.issue(sess.Username, role)
	if err != nil {
		return err
	}

	http.SetCookie(w, s.accessCookie.ToCookie(access))
	http.SetCookie(w, s.refreshCookie.ToCookie(sess.ID))
	http.SetCookie(w, s.csrfCookie.ToCookie(s.csrf.Issue(sess.ID)))

	return nil
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	u, err := s.library.user(p.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, u)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title := strings.TrimSpace(q.Get("title"))
	if title == "" {
		s.writeError(w, r, serviceerr.ErrInvalidRequest.WithDescription("title is required"))
		return
	}

	page := s.library.search(mustPrincipal(r).Username, title, intParam(q.Get("pageIndex")), intParam(q.Get("pageSize")))
	s.writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) userBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.library.booksOf(r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, books)
}

func (s *Server) addBook(w http.ResponseWriter, r *http.Request) {
	var nb borrowbook.NewBook
	if err := decodeBody(w, r, &nb); err != nil {
		s.writeError(w, r, err)
		return
	}

	book, err := s.library.addBook(mustPrincipal(r).Username, nb)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusCreated, book)
}

func (s *Server) myCollection(w http.ResponseWriter, r *http.Request) {
	books, err := s.library.booksOf(mustPrincipal(r).Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, books)
}

func (s *Server) borrowed(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.library.borrowedBy(mustPrincipal(r).Username))
}

func (s *Server) requestBorrow(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req, err := s.library.requestBorrow(mustPrincipal(r).Username, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusCreated, req)
}

func (s *Server) proposeBorrow(w http.ResponseWriter, r *http.Request) {
	var p borrowbook.Proposal
	if err := decodeBody(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}

	req, err := s.library.propose(mustPrincipal(r).Username, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusCreated, req)
}

func (s *Server) incoming(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := s.library.incoming(mustPrincipal(r).Username, intParam(q.Get("page")), intParam(q.Get("size")))
	s.writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) acceptBorrow(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, s.library.accept)
}

func (s *Server) rejectBorrow(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, s.library.reject)
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request, decision func(string, int64) (borrowbook.BorrowRequest, error)) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req, err := decision(mustPrincipal(r).Username, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, req)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.writeJSON(w, r, http.StatusOK, s.library.listUsers(intParam(q.Get("pageIndex")), intParam(q.Get("pageSize"))))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if err := s.library.deleteUser(username); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sessions.revokeUser(username)

	slogctx.Info(r.Context(), "User deleted", "username", username, "by", mustPrincipal(r).Username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slogctx.Error(r.Context(), "Failed to write response", "error", err)
	}
}

// writeError renders err as {"error", "error_description"}. Errors that are
// not a *serviceerr.Error become a server_error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *serviceerr.Error
	if !errors.As(err, &svcErr) {
		slogctx.Error(r.Context(), "Request failed", "error", err)
		svcErr = serviceerr.ErrServerError
	}

	s.writeJSON(w, r, svcErr.HTTPStatus(), map[string]string{
		"error":             string(svcErr.Err),
		"error_description": svcErr.Description,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(into); err != nil {
		return serviceerr.ErrInvalidRequest.WithDescription("malformed request body")
	}

	return nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, serviceerr.ErrInvalidRequest.WithDescription("invalid id " + r.PathValue("id"))
	}

	return id, nil
}

func intParam(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func mustPrincipal(r *http.Request) principal.Principal {
	p, _ := principal.FromContext(r.Context())
	return p
}
