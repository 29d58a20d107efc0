package cli

import (
	"errors"
	"fmt"

	"github.com/borrowbook/borrowbook/internal/serviceerr"
	"github.com/borrowbook/borrowbook/pkg/xsrf"
)

const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitLoginRequired = 3
)

// LoginRequired turns a session the client could not restore into
// serviceerr.ErrLoginRequired. Other errors are returned unchanged.
func LoginRequired(err error) error {
	if errors.Is(err, xsrf.ErrUnauthorized) {
		return fmt.Errorf("%w: %w", serviceerr.ErrLoginRequired, err)
	}

	return err
}

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, serviceerr.ErrLoginRequired):
		return ExitLoginRequired
	default:
		return ExitFailure
	}
}
