package cas

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ssoware/cascade/pkg/identity"
	"github.com/ssoware/cascade/pkg/session"
)

// AuthContext is the transient value handed to the extensibility callbacks
// during one ticket validation. It carries the CAS-asserted identity, the
// secondary identities the application may append to, the outbound property
// bag, and the three ticket values. It is never persisted.
type AuthContext struct {
	// Principal is the CAS-asserted identity. OnMakeClaims may extend its
	// roles and claims before sign-in.
	Principal identity.Principal

	// OtherIdentities collects secondary identities (directory lookups and
	// the like) to be serialized alongside the principal.
	OtherIdentities []identity.Principal

	// Properties is the property bag persisted into the session ticket.
	Properties map[string]string

	ServiceTicket          string
	ProxyGrantingTicket    string
	ProxyGrantingTicketIOU string
}

type contextKey int

const (
	principalKey contextKey = iota
	ticketKey
)

// withPrincipal attaches the signed-in user and ticket to a request context.
func withPrincipal(ctx context.Context, t *session.Ticket) context.Context {
	ctx = context.WithValue(ctx, principalKey, t.Principal)
	return context.WithValue(ctx, ticketKey, t)
}

// PrincipalFromContext returns the principal authenticated for this request,
// if any.
func PrincipalFromContext(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalKey).(identity.Principal)
	return p, ok
}

// TicketFromContext returns the full session ticket for this request, if
// any.
func TicketFromContext(ctx context.Context) (*session.Ticket, bool) {
	t, ok := ctx.Value(ticketKey).(*session.Ticket)
	return t, ok
}

// IsAuthenticated reports whether the request carries a CAS-authenticated
// user.
func IsAuthenticated(r *http.Request) bool {
	p, ok := PrincipalFromContext(r.Context())
	return ok && !p.IsAnonymous()
}

// Username returns the principal name for the request, or "".
func Username(r *http.Request) string {
	p, _ := PrincipalFromContext(r.Context())
	return p.Name
}

// Identity is the typed view of a CAS-authenticated principal.
type Identity struct {
	Principal           identity.Principal
	ServiceTicket       string
	ProxyGrantingTicket string
}

// IdentityFrom builds the typed CAS view of a session ticket. It fails with
// a clear error when the ticket was not produced by CAS authentication,
// instead of silently downcasting.
func IdentityFrom(t *session.Ticket) (*Identity, error) {
	if t == nil {
		return nil, fmt.Errorf("cas: no ticket present")
	}
	if t.Principal.AuthType != AuthType {
		return nil, fmt.Errorf("cas: principal %q lacks the CAS authentication marker (auth type %q)",
			t.Principal.Name, t.Principal.AuthType)
	}
	return &Identity{
		Principal:           t.Principal,
		ServiceTicket:       t.Properties[session.PropServiceTicket],
		ProxyGrantingTicket: t.Properties[session.PropProxyGrantingTicket],
	}, nil
}
