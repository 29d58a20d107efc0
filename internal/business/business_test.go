package business

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borrowbook/borrowbook/internal/config"
	"github.com/borrowbook/borrowbook/pkg/xsrf"
)

func TestValkeyClientFromConfig_InvalidHostRef(t *testing.T) {
	cfg := &config.Config{
		ValKey: config.ValKey{
			Host:     commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/file"}},
			User:     commoncfg.SourceRef{Source: "embedded", Value: "user"},
			Password: commoncfg.SourceRef{Source: "embedded", Value: "pass"},
		},
	}

	_, err := valkeyClientFromConfig(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load valkey host")
}

func TestValkeyClientFromConfig_InvalidUserRef(t *testing.T) {
	cfg := &config.Config{
		ValKey: config.ValKey{
			Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost:6379"},
			User:     commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/file"}},
			Password: commoncfg.SourceRef{Source: "embedded", Value: "pass"},
		},
	}

	_, err := valkeyClientFromConfig(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load valkey username")
}

func TestValkeyClientFromConfig_InvalidPasswordRef(t *testing.T) {
	cfg := &config.Config{
		ValKey: config.ValKey{
			Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost:6379"},
			User:     commoncfg.SourceRef{Source: "embedded", Value: "user"},
			Password: commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/file"}},
		},
	}

	_, err := valkeyClientFromConfig(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load valkey password")
}

func TestValkeyClientFromConfig_WithMTLS(t *testing.T) {
	cfg := &config.Config{
		ValKey: config.ValKey{
			Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost:6379"},
			User:     commoncfg.SourceRef{Source: "embedded", Value: "user"},
			Password: commoncfg.SourceRef{Source: "embedded", Value: "pass"},
			SecretRef: commoncfg.SecretRef{
				Type: commoncfg.MTLSSecretType,
				MTLS: commoncfg.MTLS{
					Cert:    commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/cert.pem"}},
					CertKey: commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/key.pem"}},
				},
			},
		},
	}

	_, err := valkeyClientFromConfig(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load valkey mTLS config from secret ref")
}

func TestLoadHTTPClient(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		cfg := &config.Config{Backend: config.Backend{Timeout: 3 * time.Second}}

		client, err := loadHTTPClient(cfg)
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, client.Timeout)
		assert.Nil(t, client.Transport)
	})

	t.Run("mtls with missing certificate", func(t *testing.T) {
		cfg := &config.Config{Backend: config.Backend{
			SecretRef: commoncfg.SecretRef{
				Type: commoncfg.MTLSSecretType,
				MTLS: commoncfg.MTLS{
					Cert:    commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/cert.pem"}},
					CertKey: commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/key.pem"}},
				},
			},
		}}

		_, err := loadHTTPClient(cfg)
		assert.ErrorContains(t, err, "failed to load mTLS config")
	})

	t.Run("unknown type", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Backend.SecretRef.Type = "basic-auth"

		_, err := loadHTTPClient(cfg)
		assert.ErrorContains(t, err, "unknown backend secret type")
	})
}

func TestJarStoreFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		jar       config.Jar
		wantStore bool
		errAssert assert.ErrorAssertionFunc
	}{
		{name: "file", jar: config.Jar{Store: config.JarStoreFile, Dir: t.TempDir()}, wantStore: true, errAssert: assert.NoError},
		{name: "default is file", jar: config.Jar{Dir: t.TempDir()}, wantStore: true, errAssert: assert.NoError},
		{name: "file without dir", jar: config.Jar{Store: config.JarStoreFile}, errAssert: assert.Error},
		{name: "memory", jar: config.Jar{Store: config.JarStoreMemory}, errAssert: assert.NoError},
		{name: "unknown", jar: config.Jar{Store: "s3"}, errAssert: assert.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closeFn, err := jarStoreFromConfig(&config.Config{Jar: tt.jar})
			tt.errAssert(t, err)
			if err != nil {
				return
			}
			defer closeFn()

			assert.Equal(t, tt.wantStore, store != nil)
		})
	}
}

func TestOpenSession_PersistsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case xsrf.BootstrapPath:
			http.SetCookie(w, &http.Cookie{Name: xsrf.CookieName, Value: "token", Path: "/"})
			w.WriteHeader(http.StatusNoContent)
		default:
			assert.Equal(t, "token", r.Header.Get(xsrf.HeaderName))
			_, _ = w.Write([]byte(`{"username":"alice"}`))
		}
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "sessions")
	cfg := &config.Config{
		Backend: config.Backend{BaseURL: srv.URL, Timeout: 5 * time.Second},
		Jar:     config.Jar{Store: config.JarStoreFile, Dir: dir, Profile: "work"},
	}

	s, err := OpenSession(t.Context(), cfg)
	require.NoError(t, err)

	me, err := s.API.Users.Me(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)
	require.NoError(t, s.Close(t.Context()))

	reopened, err := OpenSession(t.Context(), cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Close(t.Context()) }()

	assert.Equal(t, "token", reopened.Client.Token("/"))
	assert.FileExists(t, filepath.Join(dir, "work.yaml"))
}
