package cas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ssoware/cascade/pkg/identity"
	"github.com/ssoware/cascade/pkg/session"
)

// AuthStatus is the outcome class of one callback invocation.
type AuthStatus int

const (
	// AuthNone means the request was not an authentication attempt (no
	// ticket, or an out-of-band proxy callback).
	AuthNone AuthStatus = iota
	// AuthSuccess carries a validated ticket ready for sign-in.
	AuthSuccess
	// AuthFailure means the ticket was rejected, by protocol or by
	// application policy; the caller re-challenges.
	AuthFailure
)

// AuthResult is the outcome of HandleCallback.
type AuthResult struct {
	Status AuthStatus

	// Ticket and RedirectURL are set on AuthSuccess.
	Ticket      *session.Ticket
	RedirectURL string

	// Reason describes an AuthFailure; Vetoed distinguishes an application
	// veto from a protocol rejection.
	Reason string
	Vetoed bool
}

// Handler is the CAS protocol state machine: it issues challenges, validates
// returned tickets, brokers proxy tickets and processes single-log-out
// notifications. It holds no per-request state; one instance serves the
// whole process.
type Handler struct {
	cfg     Config
	ious    *IOUCache
	trusted map[string]bool
}

// New validates the configuration and builds a handler.
func New(cfg Config) (*Handler, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	trusted := make(map[string]bool, len(cfg.TrustedProxies))
	for _, p := range cfg.TrustedProxies {
		trusted[p] = true
	}

	return &Handler{
		cfg:     cfg,
		ious:    NewIOUCache(0, 0),
		trusted: trusted,
	}, nil
}

// Config returns the resolved configuration.
func (h *Handler) Config() Config {
	return h.cfg
}

// Store returns the configured session store.
func (h *Handler) Store() session.Store {
	return h.cfg.Store
}

// Challenge answers an unauthorized response: anonymous users are redirected
// to the CAS login endpoint with the current URL as the return destination;
// users who are already authenticated but still lack permission go to the
// no-permission path, or receive a plain 403 when none is configured, which
// keeps the application and the IdP from bouncing the browser forever.
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	if IsAuthenticated(r) {
		if h.cfg.NoPermissionPath != "" {
			http.Redirect(w, r, h.cfg.NoPermissionPath, http.StatusFound)
			return
		}
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	u, err := h.loginURL(r, h.challengeReturnURL(r))
	if err != nil {
		h.cfg.Logger.Error("building login URL failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.cfg.Logger.Debug("challenging", "redirect", u)
	http.Redirect(w, r, u, http.StatusFound)
}

// challengeReturnURL picks the destination restored after the login round
// trip. CAS flow parameters are stripped so a consumed ticket never rides
// along into the new service URL, and on the callback path the original
// return URL is reused outright: re-challenging with the stale callback URI
// would bounce the browser between the application and CAS indefinitely.
func (h *Handler) challengeReturnURL(r *http.Request) string {
	if r.URL.Path == h.cfg.CallbackPath {
		return r.URL.Query().Get(ReturnURLParam)
	}
	return sanitizedURL(r.URL).RequestURI()
}

// HandleCallback processes a GET on the callback path: a service ticket to
// validate, or an out-of-band pgtId/pgtIou delivery from CAS. Transport and
// parse errors are returned as errors; protocol rejections and application
// vetoes come back as an AuthFailure result.
func (h *Handler) HandleCallback(r *http.Request) (*AuthResult, error) {
	ctx := r.Context()
	q := r.URL.Query()

	ticket := q.Get("ticket")
	if ticket == "" {
		// CAS delivers the proxy-granting ticket on a separate request
		// carrying only the pgtId/pgtIou pair; cache it for the validation
		// flow and produce no identity.
		if pgtID, pgtIOU := q.Get("pgtId"), q.Get("pgtIou"); pgtID != "" && pgtIOU != "" {
			h.ious.Put(pgtIOU, pgtID)
			h.cfg.Logger.Debug("cached proxy granting ticket", "iou", pgtIOU)
		}
		return &AuthResult{Status: AuthNone}, nil
	}

	resp, err := h.validateTicket(ctx, h.serviceURL(r), ticket)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			h.cfg.Logger.Info("ticket rejected", "ticket", ticket, "code", authErr.Code)
			return &AuthResult{Status: AuthFailure, Reason: authErr.Error()}, nil
		}
		return nil, err
	}

	if reason, ok := h.checkProxyChain(resp.Proxies); !ok {
		h.cfg.Logger.Warn("rejecting proxy chain", "user", resp.User, "reason", reason)
		return &AuthResult{Status: AuthFailure, Reason: reason}, nil
	}

	pgt := ""
	if h.cfg.ProxyServer {
		if resp.ProxyGrantingTicketIOU == "" {
			return &AuthResult{Status: AuthFailure, Reason: "no proxy granting ticket IOU in response"}, nil
		}
		var ok bool
		// Eviction on read: a replayed IOU misses and fails closed,
		// forcing re-authentication instead of proceeding without a PGT.
		pgt, ok = h.ious.Take(resp.ProxyGrantingTicketIOU)
		if !ok {
			return &AuthResult{Status: AuthFailure, Reason: "proxy granting ticket not delivered"}, nil
		}
	}

	ac := h.buildAuthContext(resp, ticket, pgt)

	if cb := h.cfg.Callbacks.OnAuthenticated; cb != nil {
		if err := cb(ctx, ac); err != nil {
			return h.callbackOutcome("on-authenticated", err)
		}
	}

	serialized, err := identity.EncodeList(append([]identity.Principal{ac.Principal}, ac.OtherIdentities...))
	if err != nil {
		return nil, fmt.Errorf("cas: serialize identity list: %w", err)
	}
	ac.Properties[session.PropIdentityList] = serialized

	if cb := h.cfg.Callbacks.OnMakeClaims; cb != nil {
		if err := cb(ctx, ac); err != nil {
			return h.callbackOutcome("on-make-claims", err)
		}
	}

	now := time.Now()
	t := &session.Ticket{
		Principal:  ac.Principal,
		Properties: ac.Properties,
		IssuedAt:   now,
		ExpiresAt:  now.Add(h.cfg.SessionTTL),
	}

	h.cfg.Logger.Info("ticket validated", "user", ac.Principal.Name, "ticket", ticket)
	return &AuthResult{
		Status:      AuthSuccess,
		Ticket:      t,
		RedirectURL: h.postLoginRedirect(q.Get(ReturnURLParam)),
	}, nil
}

// callbackOutcome maps a callback error onto the result taxonomy: a veto is
// a distinguishable failure, anything else is fatal for the request.
func (h *Handler) callbackOutcome(name string, err error) (*AuthResult, error) {
	if errors.Is(err, ErrNotAuthorized) {
		h.cfg.Logger.Info("application vetoed sign-in", "callback", name, "error", err)
		return &AuthResult{Status: AuthFailure, Reason: err.Error(), Vetoed: true}, nil
	}
	return nil, fmt.Errorf("cas: %s callback: %w", name, err)
}

// checkProxyChain enforces the proxy trust invariant: every proxy listed in
// the response must be in the configured trusted set.
func (h *Handler) checkProxyChain(proxies []string) (string, bool) {
	for _, p := range proxies {
		if !h.trusted[p] {
			return fmt.Sprintf("untrusted proxy %q in chain", p), false
		}
	}
	return "", true
}

// buildAuthContext turns the CAS response into the mutable context handed
// to the extensibility callbacks.
func (h *Handler) buildAuthContext(resp *AuthenticationResponse, ticket, pgt string) *AuthContext {
	p := identity.Principal{
		Name:     resp.User,
		AuthType: h.cfg.SignInAuthType,
		Roles:    append([]string(nil), resp.MemberOf...),
	}
	p.AddClaim(session.PropServiceTicket, ticket)

	props := map[string]string{session.PropServiceTicket: ticket}
	if pgt != "" {
		props[session.PropProxyGrantingTicket] = pgt
	}
	for name, values := range resp.Attributes {
		// Repeated attribute names concatenate; last-writer-wins would
		// drop multi-valued attributes like entitlements.
		props[titleCase(name)] = strings.Join(values, ",")
	}

	return &AuthContext{
		Principal:              p,
		Properties:             props,
		ServiceTicket:          ticket,
		ProxyGrantingTicket:    pgt,
		ProxyGrantingTicketIOU: resp.ProxyGrantingTicketIOU,
	}
}

// validateTicket performs the outbound validation call for the configured
// protocol version and parses the response.
func (h *Handler) validateTicket(ctx context.Context, service *url.URL, ticket string) (*AuthenticationResponse, error) {
	u, err := h.validateURL(service, ticket)
	if err != nil {
		return nil, fmt.Errorf("cas: build validate URL: %w", err)
	}

	body, err := h.get(ctx, u)
	if err != nil {
		return nil, err
	}

	if h.cfg.ProtocolVersion == V1 {
		return parseV1Response(body)
	}
	return ParseServiceResponse(body)
}

// get performs a GET against the CAS server bounded by the request context,
// so an aborted request abandons the call without committing anything.
func (h *Handler) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("cas: build request: %w", err)
	}
	req.Header.Set("User-Agent", "cascade CAS client")

	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cas: request %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cas: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cas: server returned %s", resp.Status)
	}
	return body, nil
}
