// Package principal carries the authenticated user of a request in its
// context.
package principal

import (
	"context"
	"errors"
	"net/http"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

const principalKey contextKey = "principal"

type Principal struct {
	Username string
	Role     string
}

// Authenticator resolves the principal of a request or fails with an error
// that the caller turns into a response.
type Authenticator func(r *http.Request) (Principal, error)

// Middleware injects the principal returned by auth into the context. When
// auth fails, onError writes the response and next is not called.
func Middleware(auth Authenticator, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := auth(r)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(With(r.Context(), p)))
		})
	}
}

func With(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the principal stored by Middleware.
func FromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}, errors.New("principal not found in context")
	}
	return p, nil
}
