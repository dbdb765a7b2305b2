// Package cas implements the client and proxy side of the CAS single
// sign-on protocol as request-pipeline middleware: the login challenge,
// service-ticket validation across protocol versions 1 through 3, proxy
// ticket issuance and redemption, and single-log-out handling.
package cas

import "errors"

// AuthType tags principals authenticated through CAS.
const AuthType = "CAS"

// ReturnURLParam carries the post-login destination through the challenge
// round trip.
const ReturnURLParam = "returnUrl"

// Default paths registered by the middleware.
const (
	DefaultCallbackPath    = "/Session/Validate"
	DefaultImpersonatePath = "/Session/Impersonate"
)

// ProtocolVersion selects the CAS protocol dialect spoken to the server.
type ProtocolVersion int

const (
	V1 ProtocolVersion = 1
	V2 ProtocolVersion = 2
	V3 ProtocolVersion = 3
)

func (v ProtocolVersion) valid() bool {
	return v == V1 || v == V2 || v == V3
}

// ErrNotAuthorized is the application veto: an extensibility callback
// returns it (or wraps it) to reject a user the identity provider accepted.
// It converts the validation to a failure distinguishable from protocol
// rejection.
var ErrNotAuthorized = errors.New("cas: not authorized")
