package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borrowbook/borrowbook/pkg/borrowbook"
)

func TestPrinter(t *testing.T) {
	user := borrowbook.User{Username: "alice", Email: "alice@example.com"}

	tests := []struct {
		name      string
		format    Format
		want      string
		errAssert assert.ErrorAssertionFunc
	}{
		{
			name:      "json",
			format:    FormatJSON,
			want:      "{\n  \"username\": \"alice\",\n  \"email\": \"alice@example.com\"\n}\n",
			errAssert: assert.NoError,
		},
		{
			name:      "default is json",
			format:    "",
			want:      "{\n  \"username\": \"alice\",\n  \"email\": \"alice@example.com\"\n}\n",
			errAssert: assert.NoError,
		},
		{
			name:      "yaml",
			format:    FormatYAML,
			want:      "username: alice\nemail: alice@example.com\n",
			errAssert: assert.NoError,
		},
		{
			name:      "unsupported",
			format:    "xml",
			errAssert: assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			p, err := NewPrinter(&buf, tt.format)
			tt.errAssert(t, err)
			if err != nil {
				return
			}

			require.NoError(t, p.Print(user))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
