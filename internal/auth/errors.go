package auth

import "errors"

// Sentinel errors for the login flow. Handlers map these onto generic
// user-facing responses; the wrapped detail goes to operator logs only.
var (
	// ErrConfiguration indicates a broken relying-party setup (missing
	// secrets, unsolicited callback state). Never retried.
	ErrConfiguration = errors.New("relying party misconfigured")

	// ErrUpstream indicates a failed call to the identity provider or the
	// profile directory. The user may retry with a fresh login attempt.
	ErrUpstream = errors.New("upstream service unavailable")

	// ErrProvisioning indicates the user store rejected an account
	// create/update. Aborts the login, no automatic retry.
	ErrProvisioning = errors.New("account provisioning failed")
)
