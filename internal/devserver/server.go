// Package devserver implements a development backend for BorrowBook. It
// speaks the same cookie contract as the production API: a short lived
// access token, a single use refresh token and a double-submit csrf token.
// Books, users and borrow requests live in memory.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/borrowbook/borrowbook/internal/config"
	"github.com/borrowbook/borrowbook/pkg/csrf"
	"github.com/borrowbook/borrowbook/pkg/xsrf"
)

const (
	AccessTokenCookieName  = "ACCESS_TOKEN"
	RefreshTokenCookieName = "REFRESH_TOKEN"

	DevProvider = "dev"

	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultRotationGrace   = 10 * time.Second
	generatedSecretLength  = 32
)

type Option func(*Server)

// WithClock replaces the time source used for access tokens and requests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

type Server struct {
	cfg config.DevServer
	app commoncfg.Application

	now      func() time.Time
	tokens   *accessTokens
	sessions *sessionStore
	csrf     *csrf.Signer
	library  *library
	admins   map[string]bool
	meters   *meters

	// operations maps the registered route patterns to operation names.
	operations map[string]string

	accessCookie  config.CookieTemplate
	refreshCookie config.CookieTemplate
	csrfCookie    config.CookieTemplate
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg.DevServer,
		app:    cfg.Application,
		now:    time.Now,
		admins: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.AccessTokenTTL <= 0 {
		s.cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	if s.cfg.RefreshTokenTTL <= 0 {
		s.cfg.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	if s.cfg.RotationGracePeriod <= 0 {
		s.cfg.RotationGracePeriod = defaultRotationGrace
	}

	signingSecret, err := loadSecret(ctx, s.cfg.SigningSecret, "signing secret")
	if err != nil {
		return nil, err
	}
	csrfSecret, err := loadSecret(ctx, s.cfg.CSRFSecret, "csrf secret")
	if err != nil {
		return nil, err
	}

	s.tokens, err = newAccessTokens(signingSecret, s.cfg.AccessTokenTTL, s.now)
	if err != nil {
		return nil, err
	}

	s.meters, err = newMeters(s.app)
	if err != nil {
		return nil, err
	}

	s.sessions = newSessionStore(s.cfg.RefreshTokenTTL, s.cfg.RotationGracePeriod, s.now)
	s.csrf = csrf.NewSigner(csrfSecret)
	s.library = newLibrary(s.now)
	for _, admin := range s.cfg.Admins {
		s.admins[admin] = true
	}

	s.accessCookie = withDefaults(s.cfg.AccessTokenCookie, config.CookieTemplate{
		Name: AccessTokenCookieName, Path: "/", HTTPOnly: true, SameSite: config.CookieSameSiteLax,
	})
	s.refreshCookie = withDefaults(s.cfg.RefreshTokenCookie, config.CookieTemplate{
		Name: RefreshTokenCookieName, Path: "/", HTTPOnly: true, SameSite: config.CookieSameSiteLax,
		MaxAge: int(s.cfg.RefreshTokenTTL / time.Second),
	})
	s.csrfCookie = withDefaults(s.cfg.CSRFCookie, config.CookieTemplate{
		Name: xsrf.CookieName, Path: "/", SameSite: config.CookieSameSiteLax,
	})

	return s, nil
}

func loadSecret(ctx context.Context, ref commoncfg.SourceRef, what string) ([]byte, error) {
	if ref.Source == "" {
		slogctx.Warn(ctx, "No "+what+" configured, generating a random one")
		return randBytes(generatedSecretLength), nil
	}

	secret, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", what, err)
	}

	return secret, nil
}

func withDefaults(ct, def config.CookieTemplate) config.CookieTemplate {
	if ct.Name == "" {
		return def
	}

	return ct
}

// Start serves the development backend until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config) error {
	s, err := New(ctx, cfg)
	if err != nil {
		return oops.In("Dev Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create the development backend")
	}

	return s.ListenAndServe(ctx)
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Handler(),
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// An address of the form network://address selects the network, so tests
	// can bind to a unix socket instead of looking for a free port.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("Dev Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("Dev Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
