package identity

import (
	"encoding/json"
	"fmt"
)

// listVersion is the current wire version of the serialized identity list.
// Decoding rejects unknown versions rather than guessing: the serialized
// list travels through attacker-reachable session payloads, so the schema
// is explicit and versioned instead of an opaque object graph.
const listVersion = 1

type wireList struct {
	Version    int             `json:"v"`
	Identities []wirePrincipal `json:"identities"`
}

type wirePrincipal struct {
	Name     string   `json:"name"`
	AuthType string   `json:"authType,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Claims   []Claim  `json:"claims,omitempty"`
}

// EncodeList serializes an ordered list of principals into a single string
// suitable for storage in a ticket property bag.
func EncodeList(principals []Principal) (string, error) {
	wire := wireList{
		Version:    listVersion,
		Identities: make([]wirePrincipal, 0, len(principals)),
	}
	for _, p := range principals {
		wire.Identities = append(wire.Identities, wirePrincipal{
			Name:     p.Name,
			AuthType: p.AuthType,
			Roles:    p.Roles,
			Claims:   p.Claims,
		})
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("identity: encode list: %w", err)
	}
	return string(data), nil
}

// DecodeList reverses EncodeList, preserving order and the defining fields
// of each identity.
func DecodeList(serialized string) ([]Principal, error) {
	var wire wireList
	if err := json.Unmarshal([]byte(serialized), &wire); err != nil {
		return nil, fmt.Errorf("identity: decode list: %w", err)
	}
	if wire.Version != listVersion {
		return nil, fmt.Errorf("identity: decode list: unsupported version %d", wire.Version)
	}

	principals := make([]Principal, 0, len(wire.Identities))
	for _, w := range wire.Identities {
		principals = append(principals, Principal{
			Name:     w.Name,
			AuthType: w.AuthType,
			Roles:    w.Roles,
			Claims:   w.Claims,
		})
	}
	return principals, nil
}
