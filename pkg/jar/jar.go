// Package jar provides the cookie store used by the BorrowBook client.
//
// A Jar behaves like net/http/cookiejar for requests and additionally
// remembers every cookie it accepted, so that its content can be saved to a
// Store and restored in a later process. This is what lets a command line
// session survive between invocations.
package jar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	slogctx "github.com/veqryn/slog-context"
)

// Entry is the persisted form of one cookie.
type Entry struct {
	URL      string    `json:"url" yaml:"url"`
	Name     string    `json:"name" yaml:"name"`
	Value    string    `json:"value" yaml:"value"`
	Path     string    `json:"path" yaml:"path"`
	Domain   string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero" yaml:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty" yaml:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty" yaml:"httpOnly,omitempty"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !e.Expires.After(now)
}

func (e Entry) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     e.Name,
		Value:    e.Value,
		Path:     e.Path,
		Domain:   e.Domain,
		Expires:  e.Expires,
		Secure:   e.Secure,
		HttpOnly: e.HTTPOnly,
	}
}

// Store persists jar snapshots under a profile name. Loading an unknown
// profile yields no entries and no error.
type Store interface {
	Load(ctx context.Context, profile string) ([]Entry, error)
	Save(ctx context.Context, profile string, entries []Entry) error
	Delete(ctx context.Context, profile string) error
}

// entryKey identifies a cookie the way cookiejar does: host-only cookies by
// their host, domain cookies by their domain.
type entryKey struct {
	domain string
	path   string
	name   string
}

// Jar is an http.CookieJar whose content can be persisted.
type Jar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	entries map[entryKey]Entry

	store   Store
	profile string
	now     func() time.Time
}

// New returns an empty jar that is not bound to a store.
func New() (*Jar, error) {
	return newJar(nil, "")
}

// Open restores the jar saved for profile in store.
func Open(ctx context.Context, store Store, profile string) (*Jar, error) {
	j, err := newJar(store, profile)
	if err != nil {
		return nil, err
	}

	entries, err := store.Load(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("loading cookies for profile %q: %w", profile, err)
	}

	restored := 0
	now := j.now()
	for _, e := range entries {
		if e.expired(now) {
			continue
		}

		u, err := url.Parse(e.URL)
		if err != nil {
			slogctx.Warn(ctx, "Skipping cookie with invalid url", "name", e.Name, "error", err)
			continue
		}

		j.SetCookies(u, []*http.Cookie{e.cookie()})
		restored++
	}

	slogctx.Debug(ctx, "Restored cookie jar", "profile", profile, "cookies", restored)

	return j, nil
}

func newJar(store Store, profile string) (*Jar, error) {
	cj, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	return &Jar{
		jar:     cj,
		entries: make(map[entryKey]Entry),
		store:   store,
		profile: profile,
		now:     time.Now,
	}, nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	now := j.now()
	for _, c := range cookies {
		key, entry := j.entryFor(u, c, now)
		if c.MaxAge < 0 || entry.expired(now) {
			delete(j.entries, key)
			continue
		}
		if !j.kept(u, entry) {
			continue
		}
		j.entries[key] = entry
	}
}

// kept reports whether the underlying jar stored the cookie. Cookies it
// rejects, such as those for a foreign or public suffix domain, must not be
// persisted.
func (j *Jar) kept(u *url.URL, e Entry) bool {
	probe := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: e.Path}
	if e.Secure {
		probe.Scheme = "https"
	}

	for _, c := range j.jar.Cookies(probe) {
		if c.Name == e.Name && c.Value == e.Value {
			return true
		}
	}

	return false
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.jar.Cookies(u)
}

// Cookie returns the value of the named cookie that would be sent to u.
func (j *Jar) Cookie(u *url.URL, name string) (string, bool) {
	for _, c := range j.Cookies(u) {
		if c.Name == name {
			return c.Value, true
		}
	}

	return "", false
}

// Clear expires every cookie named name that is visible for u.
func (j *Jar) Clear(u *url.URL, name string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := u.Hostname()
	for key, e := range j.entries {
		if e.Name != name || !domainMatch(host, key.domain, e.Domain == "") {
			continue
		}

		expired := e.cookie()
		expired.Value = ""
		expired.Expires = time.Time{}
		expired.MaxAge = -1

		eu, err := url.Parse(e.URL)
		if err != nil {
			eu = u
		}
		j.jar.SetCookies(eu, []*http.Cookie{expired})
		delete(j.entries, key)
	}
}

// Entries returns the live cookies, ordered by url, path and name.
func (j *Jar) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	out := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		if e.expired(now) {
			continue
		}
		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.URL+"\x00"+a.Path+"\x00"+a.Name, b.URL+"\x00"+b.Path+"\x00"+b.Name)
	})

	return out
}

// Persist saves the live cookies to the store the jar was opened from.
func (j *Jar) Persist(ctx context.Context) error {
	if j.store == nil {
		return nil
	}

	entries := j.Entries()
	if err := j.store.Save(ctx, j.profile, entries); err != nil {
		return fmt.Errorf("saving cookies for profile %q: %w", j.profile, err)
	}

	slogctx.Debug(ctx, "Persisted cookie jar", "profile", j.profile, "cookies", len(entries))

	return nil
}

// Reset drops every cookie and removes the stored snapshot.
func (j *Jar) Reset(ctx context.Context) error {
	cj, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}

	j.mu.Lock()
	j.jar = cj
	j.entries = make(map[entryKey]Entry)
	j.mu.Unlock()

	if j.store == nil {
		return nil
	}

	if err := j.store.Delete(ctx, j.profile); err != nil {
		return fmt.Errorf("deleting cookies for profile %q: %w", j.profile, err)
	}

	return nil
}

func (j *Jar) entryFor(u *url.URL, c *http.Cookie, now time.Time) (entryKey, Entry) {
	cookiePath := c.Path
	if cookiePath == "" || cookiePath[0] != '/' {
		cookiePath = defaultPath(u.Path)
	}

	domain := strings.TrimPrefix(strings.ToLower(c.Domain), ".")

	var expires time.Time
	switch {
	case c.MaxAge > 0:
		expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		expires = c.Expires
	}

	entry := Entry{
		URL:      (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: cookiePath}).String(),
		Name:     c.Name,
		Value:    c.Value,
		Path:     cookiePath,
		Domain:   domain,
		Expires:  expires,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}

	key := entryKey{
		domain: domain,
		path:   cookiePath,
		name:   c.Name,
	}
	if domain == "" {
		key.domain = strings.ToLower(u.Hostname())
	}

	return key, entry
}

// defaultPath follows RFC 6265 section 5.1.4.
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}

	dir := path.Dir(p)
	if dir == "." {
		return "/"
	}

	return dir
}

func domainMatch(host, domain string, hostOnly bool) bool {
	host = strings.ToLower(host)
	if hostOnly {
		return host == domain
	}

	return host == domain || strings.HasSuffix(host, "."+domain)
}
