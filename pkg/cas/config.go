package cas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ssoware/cascade/pkg/identity"
	"github.com/ssoware/cascade/pkg/session"
)

// Callbacks are the application extensibility points invoked during ticket
// validation and sign-out. All of them are optional. OnAuthenticated and
// OnMakeClaims may veto by returning ErrNotAuthorized (possibly wrapped);
// any other error is treated as fatal for the request.
type Callbacks struct {
	// OnAuthenticated runs after the CAS response has been accepted and the
	// principal built, before anything is persisted. The callback may
	// append secondary identities or attach properties.
	OnAuthenticated func(ctx context.Context, ac *AuthContext) error

	// OnMakeClaims runs after the identity list has been serialized,
	// letting the application add authorization claims to the outward
	// facing principal.
	OnMakeClaims func(ctx context.Context, ac *AuthContext) error

	// OnSignOut is notified when a single-log-out request removes the
	// session stored under the given service ticket.
	OnSignOut func(ctx context.Context, serviceTicket string)

	// CanImpersonate is reserved for the impersonation extension point,
	// which currently rejects every request. The callback is never invoked.
	CanImpersonate func(ctx context.Context, p identity.Principal) bool
}

// Config carries the recognized options of the CAS handler.
type Config struct {
	// ServerURL is the base URL of the CAS server. Required.
	ServerURL *url.URL

	// ProtocolVersion defaults to V2.
	ProtocolVersion ProtocolVersion

	// CallbackPath is where CAS sends the browser back with a ticket and
	// where single-log-out notifications arrive. Defaults to
	// DefaultCallbackPath.
	CallbackPath string

	// ImpersonatePath is a reserved extension point that rejects all
	// requests. Defaults to DefaultImpersonatePath.
	ImpersonatePath string

	// LoginPath, when set, receives the post-login redirect with the
	// original return URL appended as a query parameter.
	LoginPath string

	// NoPermissionPath receives users who are authenticated but still
	// unauthorized. When empty the handler answers 403 instead, which
	// avoids a redirect loop between the application and the IdP.
	NoPermissionPath string

	// Renew forces re-authentication at the CAS server. Takes precedence
	// over Gateway; the two are mutually exclusive on the wire.
	Renew bool

	// Gateway asks CAS for non-interactive authentication.
	Gateway bool

	// Method is the v3-only login method hint (e.g. "POST").
	Method string

	// ProxyServer makes this application obtain proxy-granting tickets so
	// it can call downstream services. Requires ProxyCallbackURL.
	ProxyServer bool

	// ProxyCallbackURL is the externally reachable URL CAS calls back with
	// pgtId/pgtIou pairs.
	ProxyCallbackURL string

	// ProxyClient makes ticket validation accept proxy tickets
	// (proxyValidate instead of serviceValidate).
	ProxyClient bool

	// TrustedProxies is the set of proxy identifiers allowed to appear in
	// a validated ticket's proxy chain. Any chain entry outside this set
	// fails the validation.
	TrustedProxies []string

	// SignInAuthType tags the resulting principal. Defaults to AuthType.
	SignInAuthType string

	// SessionTTL bounds the local session created on successful sign-in.
	SessionTTL time.Duration

	// Store persists the authentication ticket. Required.
	Store session.Store

	// HTTPClient performs the outbound validation and proxy calls.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger

	Callbacks Callbacks
}

// setDefaults fills the zero-value options in place.
func (c *Config) setDefaults() {
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = V2
	}
	if c.CallbackPath == "" {
		c.CallbackPath = DefaultCallbackPath
	}
	if c.ImpersonatePath == "" {
		c.ImpersonatePath = DefaultImpersonatePath
	}
	if c.SignInAuthType == "" {
		c.SignInAuthType = AuthType
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 8 * time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// validate surfaces configuration mistakes at construction time rather than
// on first use.
func (c *Config) validate() error {
	if c.ServerURL == nil {
		return errors.New("cas: config requires ServerURL")
	}
	if c.Store == nil {
		return errors.New("cas: config requires a session store")
	}
	if !c.ProtocolVersion.valid() {
		return fmt.Errorf("cas: unsupported protocol version %d", c.ProtocolVersion)
	}
	if c.ProxyServer && c.ProxyCallbackURL == "" {
		return errors.New("cas: ProxyServer requires ProxyCallbackURL")
	}
	if c.ProxyServer && c.ProtocolVersion < V2 {
		return errors.New("cas: proxy support requires protocol version 2 or later")
	}
	return nil
}
