// Package session persists CAS authentication tickets. The protocol handler
// hands a validated ticket to a Store; the store protects it as an opaque
// payload, keys it deterministically off the service ticket, and replays it
// on later requests. A deferred variant queues operations for hosts whose
// real backend only becomes available late in the request pipeline.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/ssoware/cascade/pkg/identity"
)

// Well-known property bag keys persisted inside a ticket.
const (
	PropServiceTicket       = "ServiceTicket"
	PropProxyGrantingTicket = "ProxyGrantingTicket"
	PropIdentityList        = "IdentityList"
)

// StubAuthType marks placeholder principals returned by the deferred store
// before the backend has been consulted. Nothing downstream should treat a
// stub as an authenticated user.
const StubAuthType = "cascade.stub"

var (
	// ErrNotConfigured is returned when a store is used without its
	// mandatory backend callbacks. It indicates a programming error, not a
	// runtime condition.
	ErrNotConfigured = errors.New("session: store backend not configured")

	// ErrNoServiceTicket is returned when a ticket without a service-ticket
	// property is handed to Store.
	ErrNoServiceTicket = errors.New("session: ticket has no service ticket property")
)

// Ticket is the authentication ticket produced by a successful CAS
// validation: the signed-in principal plus a string property bag carrying
// the service ticket, the serialized identity list and any CAS attributes.
type Ticket struct {
	Principal  identity.Principal
	Properties map[string]string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// ServiceTicket returns the service ticket value stored in the property bag.
func (t *Ticket) ServiceTicket() string {
	return t.Properties[PropServiceTicket]
}

// Expired reports whether the ticket's lifetime has passed.
func (t *Ticket) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Record is the unit of storage a backend deals in. ProtectedPayload is an
// opaque encoding of a Ticket; backends never interpret it.
type Record struct {
	SessionKey       string
	ProtectedPayload string
	ExpiresAt        time.Time
}

// Action identifies a session-store operation, used by the deferred store's
// replay queue.
type Action string

const (
	ActionGet    Action = "get"
	ActionStore  Action = "store"
	ActionRemove Action = "remove"
	ActionRenew  Action = "renew"
)

// Store is the session-store contract. Retrieve returns (nil, nil) on a
// cache miss. Store derives the session key from the ticket's service-ticket
// value, so re-storing the same ticket is idempotent.
type Store interface {
	Retrieve(ctx context.Context, key string) (*Ticket, error)
	Store(ctx context.Context, t *Ticket) (string, error)
	Remove(ctx context.Context, key string) error
	Renew(ctx context.Context, key string, t *Ticket) error
}

// ticketPrefixes covers the CAS ticket naming convention. Tickets following
// it are hashed into the session key; anything else is used verbatim.
var ticketPrefixes = []string{"ST-", "PT-"}

// SessionKey derives the deterministic session key for a service ticket.
func SessionKey(serviceTicket string) string {
	for _, prefix := range ticketPrefixes {
		if strings.HasPrefix(serviceTicket, prefix) {
			sum := sha256.Sum256([]byte(serviceTicket))
			return hex.EncodeToString(sum[:])
		}
	}
	return serviceTicket
}

// KeyFor derives the session key for a ticket from its service-ticket
// property.
func KeyFor(t *Ticket) (string, error) {
	st := t.ServiceTicket()
	if st == "" {
		return "", ErrNoServiceTicket
	}
	return SessionKey(st), nil
}
