package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/borrowbook/borrowbook/internal/serviceerr"
	"github.com/borrowbook/borrowbook/pkg/xsrf"
)

func TestLoginRequired(t *testing.T) {
	unauthorized := fmt.Errorf("%w: refresh endpoint returned status 401", xsrf.ErrUnauthorized)
	other := errors.New("connection refused")

	err := LoginRequired(unauthorized)
	assert.ErrorIs(t, err, serviceerr.ErrLoginRequired)
	assert.ErrorIs(t, err, xsrf.ErrUnauthorized)

	assert.Equal(t, other, LoginRequired(other))
	assert.NoError(t, LoginRequired(nil))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitOK},
		{name: "login required", err: LoginRequired(xsrf.ErrUnauthorized), want: ExitLoginRequired},
		{name: "wrapped login required", err: fmt.Errorf("running me: %w", LoginRequired(xsrf.ErrUnauthorized)), want: ExitLoginRequired},
		{name: "other", err: errors.New("boom"), want: ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
