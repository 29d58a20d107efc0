package jarvalkey_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"

	"github.com/borrowbook/borrowbook/internal/dbtest/valkeytest"
	"github.com/borrowbook/borrowbook/pkg/jar"
	jarvalkey "github.com/borrowbook/borrowbook/pkg/jar/valkey"
)

var client valkey.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	valkeyClient, _, terminate := valkeytest.Start(ctx)
	client = valkeyClient

	code := m.Run()
	terminate(ctx)

	os.Exit(code)
}

func TestStore_SaveLoad(t *testing.T) {
	const prefix = "borrowbook-save-load-test:"

	store := jarvalkey.NewStore(client, prefix)
	expires := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	entries := []jar.Entry{
		{URL: "http://localhost:8080/", Name: "ACCESS_TOKEN", Value: "jwt", Path: "/", HTTPOnly: true, Expires: expires},
		{URL: "http://localhost:8080/", Name: "XSRF-TOKEN", Value: "abc", Path: "/", Expires: expires.Add(-time.Minute)},
	}

	require.NoError(t, store.Save(t.Context(), "default", entries))

	got, err := store.Load(t.Context(), "default")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ACCESS_TOKEN", got[0].Name)
	assert.True(t, got[0].Expires.Equal(expires))
	assert.Equal(t, "abc", got[1].Value)

	ttl, err := client.Do(t.Context(), client.B().Ttl().Key("borrowbook-save-load-test:jar:default").Build()).AsInt64()
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(3500))
	assert.LessOrEqual(t, ttl, int64(3600))
}

func TestStore_SessionCookieDoesNotExpire(t *testing.T) {
	const prefix = "borrowbook-session-cookie-test"

	store := jarvalkey.NewStore(client, prefix)
	entries := []jar.Entry{
		{URL: "http://localhost:8080/", Name: "XSRF-TOKEN", Value: "abc", Path: "/"},
		{URL: "http://localhost:8080/", Name: "ACCESS_TOKEN", Value: "jwt", Path: "/", Expires: time.Now().Add(time.Hour)},
	}

	require.NoError(t, store.Save(t.Context(), "default", entries))

	ttl, err := client.Do(t.Context(), client.B().Ttl().Key(prefix+":jar:default").Build()).AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)
}

func TestStore_LoadUnknownProfile(t *testing.T) {
	store := jarvalkey.NewStore(client, "borrowbook-unknown-test")

	got, err := store.Load(t.Context(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Delete(t *testing.T) {
	store := jarvalkey.NewStore(client, "borrowbook-delete-test")

	require.NoError(t, store.Save(t.Context(), "default", []jar.Entry{
		{URL: "http://localhost:8080/", Name: "XSRF-TOKEN", Value: "abc", Path: "/"},
	}))
	require.NoError(t, store.Delete(t.Context(), "default"))

	got, err := store.Load(t.Context(), "default")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SaveEmptyDeletes(t *testing.T) {
	store := jarvalkey.NewStore(client, "borrowbook-save-empty-test")

	require.NoError(t, store.Save(t.Context(), "default", []jar.Entry{
		{URL: "http://localhost:8080/", Name: "XSRF-TOKEN", Value: "abc", Path: "/"},
	}))
	require.NoError(t, store.Save(t.Context(), "default", nil))

	exists, err := client.Do(t.Context(), client.B().Exists().Key("borrowbook-save-empty-test:jar:default").Build()).AsInt64()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestStore_RoundTripThroughJar(t *testing.T) {
	store := jarvalkey.NewStore(client, "borrowbook-jar-test")
	require.NoError(t, store.Save(t.Context(), "default", []jar.Entry{
		{URL: "http://localhost:8080/", Name: "XSRF-TOKEN", Value: "abc", Path: "/"},
	}))

	j, err := jar.Open(t.Context(), store, "default")
	require.NoError(t, err)

	v, ok := j.Cookie(mustParse(t, "http://localhost:8080/api/v1/books"), "XSRF-TOKEN")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}
