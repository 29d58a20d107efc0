// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Backend   Backend   `yaml:"backend"`
	Jar       Jar       `yaml:"jar"`
	ValKey    ValKey    `yaml:"valkey"`
	DevServer DevServer `yaml:"devServer"`
}

// Backend points the client at a BorrowBook API.
type Backend struct {
	BaseURL         string        `yaml:"baseURL" default:"http://localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" default:"30s"`
	CoalesceRefresh bool          `yaml:"coalesceRefresh"`
	UserAgent       string        `yaml:"userAgent"`
	// SecretRef of type mtls presents a client certificate to the backend.
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type JarStore string

const (
	JarStoreFile   JarStore = "file"
	JarStoreValKey JarStore = "valkey"
	JarStoreMemory JarStore = "memory"
)

// Jar selects where the cookies of a profile are kept between runs.
type Jar struct {
	Store   JarStore `yaml:"store" default:"file"`
	Dir     string   `yaml:"dir" default:"$HOME/.borrowbook/sessions"`
	Profile string   `yaml:"profile" default:"default"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// DevServer configures the local development backend.
type DevServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`

	AccessTokenTTL  time.Duration `yaml:"accessTokenTTL" default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTTL" default:"168h"`
	// RotationGracePeriod is how long a rotated refresh token and its csrf
	// token are still honoured.
	RotationGracePeriod time.Duration `yaml:"rotationGracePeriod" default:"10s"`

	SigningSecret commoncfg.SourceRef `yaml:"signingSecret"`
	CSRFSecret    commoncfg.SourceRef `yaml:"csrfSecret"`

	AccessTokenCookie  CookieTemplate `yaml:"accessTokenCookie"`
	RefreshTokenCookie CookieTemplate `yaml:"refreshTokenCookie"`
	CSRFCookie         CookieTemplate `yaml:"csrfCookie"`

	// Admins may use the /api/admin endpoints.
	Admins []string `yaml:"admins"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure"`
	SameSite CookieSameSite `yaml:"sameSite"`
	HTTPOnly bool           `yaml:"httpOnly"`
}
