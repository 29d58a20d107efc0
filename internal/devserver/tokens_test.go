package devserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokens(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tokens, err := newAccessTokens([]byte("secret"), time.Minute, clock)
	require.NoError(t, err)

	raw, err := tokens.issue("alice", roleAdmin)
	require.NoError(t, err)

	subject, role, err := tokens.verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
	assert.Equal(t, roleAdmin, role)

	other, err := newAccessTokens([]byte("other secret"), time.Minute, clock)
	require.NoError(t, err)
	_, _, err = other.verify(raw)
	assert.ErrorIs(t, err, errInvalidAccessToken)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	_, _, err = tokens.verify(parts[0] + "." + parts[1] + ".AAAA")
	assert.ErrorIs(t, err, errInvalidAccessToken)

	_, _, err = tokens.verify("not a token")
	assert.ErrorIs(t, err, errInvalidAccessToken)

	now = now.Add(2 * time.Minute)
	_, _, err = tokens.verify(raw)
	assert.ErrorIs(t, err, errInvalidAccessToken)
}
