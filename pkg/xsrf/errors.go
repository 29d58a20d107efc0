package xsrf

import "errors"

// ErrUnauthorized is returned by Client.Do when the session could not be
// established or restored. It is never returned together with a response and
// is distinct from transport failures, so callers need a single
// errors.Is(err, ErrUnauthorized) branch to send the user back to login.
var ErrUnauthorized = errors.New("xsrf: unauthorized")
