// Package mockcas implements a small CAS identity provider for the demo
// binary and for end-to-end tests. It issues single-use service and proxy
// tickets, delivers proxy-granting tickets to callback URLs, and serves
// the protocol v1-v3 validation endpoints.
package mockcas

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// User is a demo account known to the provider.
type User struct {
	ID         string
	Password   string
	MemberOf   []string
	Attributes map[string][]string
}

// ticket records what a service or proxy ticket was minted for.
type ticket struct {
	user      *User
	service   string
	proxies   []string // populated for proxy tickets, outermost first
	fromRenew bool
	issuedAt  time.Time
}

// grantingTicket pairs a PGT with the session it extends.
type grantingTicket struct {
	user    *User
	service string
	proxies []string
}

const ticketLifetime = 5 * time.Minute

// Provider holds the mock IdP's state. All maps are guarded by mu; tickets
// are removed on first validation.
type Provider struct {
	users   map[string]*User
	tickets map[string]*ticket
	pgts    map[string]*grantingTicket
	mu      sync.Mutex
}

// NewProvider builds a provider seeded with the demo accounts.
func NewProvider() *Provider {
	p := &Provider{
		users:   make(map[string]*User),
		tickets: make(map[string]*ticket),
		pgts:    make(map[string]*grantingTicket),
	}
	p.initDemoData()
	return p
}

func (p *Provider) initDemoData() {
	p.users["alice"] = &User{
		ID:       "alice",
		Password: "password123",
		MemberOf: []string{"users", "engineering"},
		Attributes: map[string][]string{
			"email":      {"alice@example.com"},
			"department": {"Engineering"},
		},
	}

	p.users["bob"] = &User{
		ID:       "bob",
		Password: "password123",
		MemberOf: []string{"users"},
		Attributes: map[string][]string{
			"email":      {"bob@example.com"},
			"department": {"Marketing"},
		},
	}

	p.users["admin"] = &User{
		ID:       "admin",
		Password: "admin123",
		MemberOf: []string{"users", "admins"},
		Attributes: map[string][]string{
			"email": {"admin@example.com"},
		},
	}
}

// ValidateCredentials checks a username and password pair.
func (p *Provider) ValidateCredentials(username, password string) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return nil, errors.New("user not found")
	}
	if u.Password != password {
		return nil, errors.New("invalid password")
	}
	return u, nil
}

// AddUser registers an account. Tests use this to shape attribute payloads.
func (p *Provider) AddUser(u *User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.ID] = u
}

// IssueServiceTicket mints a single-use ST bound to the service URL.
func (p *Provider) IssueServiceTicket(user *User, service string, fromRenew bool) string {
	st := "ST-" + uuid.NewString()
	p.mu.Lock()
	p.tickets[st] = &ticket{user: user, service: service, fromRenew: fromRenew, issuedAt: time.Now()}
	p.mu.Unlock()
	return st
}

// IssueProxyTicket mints a single-use PT from a granting ticket. The chain
// of proxying services rides along for proxyValidate responses.
func (p *Provider) IssueProxyTicket(pgt, targetService string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	gt, ok := p.pgts[pgt]
	if !ok {
		return "", errors.New("unknown proxy-granting ticket")
	}

	pt := "PT-" + uuid.NewString()
	p.tickets[pt] = &ticket{
		user:     gt.user,
		service:  targetService,
		proxies:  append([]string{gt.service}, gt.proxies...),
		issuedAt: time.Now(),
	}
	return pt, nil
}

// RedeemTicket validates and consumes an ST or PT. A second redemption of
// the same ticket fails, as does a service mismatch or an expired ticket.
func (p *Provider) RedeemTicket(tkt, service string, renew bool) (*ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tickets[tkt]
	if !ok {
		return nil, fmt.Errorf("ticket %q not recognized", tkt)
	}
	delete(p.tickets, tkt)

	if time.Since(t.issuedAt) > ticketLifetime {
		return nil, fmt.Errorf("ticket %q expired", tkt)
	}
	if t.service != service {
		return nil, fmt.Errorf("ticket %q not issued for service %q", tkt, service)
	}
	if renew && !t.fromRenew {
		return nil, fmt.Errorf("ticket %q was not issued from primary credentials", tkt)
	}
	return t, nil
}

// StoreGrantingTicket records a PGT minted during ticket validation.
func (p *Provider) StoreGrantingTicket(pgt string, t *ticket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pgts[pgt] = &grantingTicket{user: t.user, service: t.service, proxies: t.proxies}
}

func randomToken(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}
