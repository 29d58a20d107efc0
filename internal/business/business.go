// Package business wires configuration into the runnable parts of
// BorrowBook: the development backend and client sessions.
package business

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/borrowbook/borrowbook/internal/config"
	"github.com/borrowbook/borrowbook/internal/devserver"
	"github.com/borrowbook/borrowbook/pkg/borrowbook"
	"github.com/borrowbook/borrowbook/pkg/jar"
	jarfile "github.com/borrowbook/borrowbook/pkg/jar/file"
	jarvalkey "github.com/borrowbook/borrowbook/pkg/jar/valkey"
	"github.com/borrowbook/borrowbook/pkg/xsrf"
)

// DevServerMain serves the development backend until ctx is cancelled.
func DevServerMain(ctx context.Context, cfg *config.Config) error {
	return devserver.Start(ctx, cfg)
}

// Session is a client bound to a persisted cookie jar.
type Session struct {
	Jar    *jar.Jar
	Client *xsrf.Client
	API    *borrowbook.Client

	closeFn func()
}

// OpenSession restores the jar of the configured profile and builds the
// clients on top of it. Close must be called to persist the jar.
func OpenSession(ctx context.Context, cfg *config.Config) (*Session, error) {
	store, closeFn, err := jarStoreFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating cookie store: %w", err)
	}

	var j *jar.Jar
	if store == nil {
		j, err = jar.New()
	} else {
		j, err = jar.Open(ctx, store, cfg.Jar.Profile)
	}
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("opening cookie jar: %w", err)
	}

	httpClient, err := loadHTTPClient(cfg)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("loading http client: %w", err)
	}
	httpClient.Jar = j

	client, err := xsrf.NewClient(xsrf.Config{
		BaseURL:         cfg.Backend.BaseURL,
		HTTPClient:      httpClient,
		Cookies:         j,
		CoalesceRefresh: cfg.Backend.CoalesceRefresh,
		UserAgent:       cfg.Backend.UserAgent,
	})
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("creating xsrf client: %w", err)
	}

	slogctx.Debug(ctx, "Opened client session", "profile", cfg.Jar.Profile, "store", cfg.Jar.Store, "base_url", client.BaseURL())

	return &Session{
		Jar:     j,
		Client:  client,
		API:     borrowbook.NewClient(client, borrowbook.WithCookieClearer(j)),
		closeFn: closeFn,
	}, nil
}

// Close persists the jar and releases the store.
func (s *Session) Close(ctx context.Context) error {
	defer s.closeFn()

	return s.Jar.Persist(ctx)
}

// jarStoreFromConfig returns a nil store for the memory backend.
func jarStoreFromConfig(cfg *config.Config) (jar.Store, func(), error) {
	switch cfg.Jar.Store {
	case config.JarStoreFile, "":
		dir := os.ExpandEnv(cfg.Jar.Dir)
		if dir == "" {
			return nil, nil, errors.New("jar directory is not configured")
		}

		return jarfile.NewStore(dir), func() {}, nil
	case config.JarStoreValKey:
		client, err := valkeyClientFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}

		return jarvalkey.NewStore(client, cfg.ValKey.Prefix), client.Close, nil
	case config.JarStoreMemory:
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown jar store %q", cfg.Jar.Store)
	}
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

func loadHTTPClient(cfg *config.Config) (*http.Client, error) {
	switch cfg.Backend.SecretRef.Type {
	case commoncfg.MTLSSecretType:
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.Backend.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load mTLS config: %w", err)
		}

		return &http.Client{
			Timeout: cfg.Backend.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsConfig,
			},
		}, nil
	case "":
		return &http.Client{Timeout: cfg.Backend.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown backend secret type %q", cfg.Backend.SecretRef.Type)
	}
}
