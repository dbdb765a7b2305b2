// Package identity defines the principal model shared by the CAS protocol
// handler and the session layer, together with the versioned codec used to
// carry an ordered list of identities inside a session property bag.
package identity

// Claim is a single typed attribute attached to a principal.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Principal describes one authenticated identity: a principal name, the
// authentication type that produced it, role memberships and attribute claims.
type Principal struct {
	Name     string
	AuthType string
	Roles    []string
	Claims   []Claim
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal {
	return Principal{}
}

// IsAnonymous reports whether the principal carries no authentication.
func (p Principal) IsAnonymous() bool {
	return p.AuthType == "" && p.Name == ""
}

// Claim returns the first claim value of the given type, or "".
func (p Principal) Claim(claimType string) string {
	for _, c := range p.Claims {
		if c.Type == claimType {
			return c.Value
		}
	}
	return ""
}

// AddClaim appends a claim, keeping earlier claims of the same type.
func (p *Principal) AddClaim(claimType, value string) {
	p.Claims = append(p.Claims, Claim{Type: claimType, Value: value})
}

// HasRole reports whether the principal holds the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
