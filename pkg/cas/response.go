package cas

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// AuthenticationError represents a CAS authenticationFailure or proxyFailure
// response. Codes follow the CAS protocol appendix.
type AuthenticationError struct {
	Code    string
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AuthenticationResponse captures a successful CAS validation.
type AuthenticationResponse struct {
	User                   string              // asserted principal name
	ProxyGrantingTicketIOU string              // correlation token for the out-of-band PGT callback
	Proxies                []string            // intermediating proxy chain, most recent first
	AuthenticationDate     time.Time           // v3 attribute block
	IsNewLogin             bool                // v3 attribute block
	IsRememberedLogin      bool                // v3 attribute block
	MemberOf               []string            // group memberships
	Attributes             map[string][]string // free-form extension attributes
}

// Attribute returns the first value of a named attribute, or "".
func (r *AuthenticationResponse) Attribute(name string) string {
	if vs := r.Attributes[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (r *AuthenticationResponse) addAttribute(name, value string) {
	if name == "" {
		return
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string][]string)
	}
	r.Attributes[name] = append(r.Attributes[name], value)
}

// Namespace-agnostic element names: CAS servers emit the Yale namespace but
// the occasional deployment drops or rewrites it, so tags match on local
// name only.
type xmlServiceResponse struct {
	XMLName      xml.Name                  `xml:"serviceResponse"`
	Failure      *xmlAuthenticationFailure `xml:"authenticationFailure"`
	Success      *xmlAuthenticationSuccess `xml:"authenticationSuccess"`
	ProxySuccess *xmlProxySuccess          `xml:"proxySuccess"`
	ProxyFailure *xmlAuthenticationFailure `xml:"proxyFailure"`
}

type xmlAuthenticationFailure struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type xmlAuthenticationSuccess struct {
	User                string         `xml:"user"`
	ProxyGrantingTicket string         `xml:"proxyGrantingTicket"`
	Proxies             *xmlProxies    `xml:"proxies"`
	Attributes          *xmlAttributes `xml:"attributes"`
}

type xmlProxies struct {
	Proxies []string `xml:"proxy"`
}

type xmlAttributes struct {
	AuthenticationDate                     time.Time     `xml:"authenticationDate"`
	LongTermAuthenticationRequestTokenUsed bool          `xml:"longTermAuthenticationRequestTokenUsed"`
	IsFromNewLogin                         bool          `xml:"isFromNewLogin"`
	MemberOf                               []string      `xml:"memberOf"`
	Extra                                  []xmlAnyValue `xml:",any"`
}

type xmlAnyValue struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlProxySuccess struct {
	ProxyTicket string `xml:"proxyTicket"`
}

// wellKnownAttributes are handled by dedicated fields rather than the
// free-form attribute map.
var wellKnownAttributes = map[string]bool{
	"authenticationDate":                     true,
	"longTermAuthenticationRequestTokenUsed": true,
	"isFromNewLogin":                         true,
	"memberOf":                               true,
}

// ParseServiceResponse parses a v2/v3 serviceValidate or proxyValidate
// response body. A well-formed authenticationFailure comes back as an
// *AuthenticationError.
func ParseServiceResponse(body []byte) (*AuthenticationResponse, error) {
	var x xmlServiceResponse
	if err := xml.Unmarshal(body, &x); err != nil {
		return nil, fmt.Errorf("cas: parse service response: %w", err)
	}

	if x.Failure != nil {
		return nil, &AuthenticationError{
			Code:    x.Failure.Code,
			Message: strings.TrimSpace(x.Failure.Message),
		}
	}
	if x.Success == nil {
		return nil, fmt.Errorf("cas: parse service response: neither success nor failure present")
	}

	r := &AuthenticationResponse{
		User:                   x.Success.User,
		ProxyGrantingTicketIOU: x.Success.ProxyGrantingTicket,
	}
	if x.Success.Proxies != nil {
		r.Proxies = x.Success.Proxies.Proxies
	}
	if a := x.Success.Attributes; a != nil {
		r.AuthenticationDate = a.AuthenticationDate
		r.IsRememberedLogin = a.LongTermAuthenticationRequestTokenUsed
		r.IsNewLogin = a.IsFromNewLogin
		r.MemberOf = a.MemberOf
		for _, extra := range a.Extra {
			if wellKnownAttributes[extra.XMLName.Local] {
				continue
			}
			r.addAttribute(extra.XMLName.Local, strings.TrimSpace(extra.Value))
		}
	}
	return r, nil
}

// ParseProxyResponse parses a /proxy response body into the issued proxy
// ticket. Failures come back as *AuthenticationError.
func ParseProxyResponse(body []byte) (string, error) {
	var x xmlServiceResponse
	if err := xml.Unmarshal(body, &x); err != nil {
		return "", fmt.Errorf("cas: parse proxy response: %w", err)
	}

	if x.ProxyFailure != nil {
		return "", &AuthenticationError{
			Code:    x.ProxyFailure.Code,
			Message: strings.TrimSpace(x.ProxyFailure.Message),
		}
	}
	if x.ProxySuccess == nil || x.ProxySuccess.ProxyTicket == "" {
		return "", fmt.Errorf("cas: parse proxy response: no proxy ticket present")
	}
	return x.ProxySuccess.ProxyTicket, nil
}

// parseV1Response parses the two-line plaintext body of the protocol 1
// validate endpoint: "yes\n<user>\n" or "no\n\n". Servers emitting CRLF
// line endings are tolerated.
func parseV1Response(body []byte) (*AuthenticationResponse, error) {
	lines := strings.Split(string(body), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	if len(lines) > 0 && lines[0] == "yes" && len(lines) > 1 && lines[1] != "" {
		return &AuthenticationResponse{User: lines[1]}, nil
	}
	return nil, &AuthenticationError{Code: "INVALID_TICKET", Message: "ticket rejected"}
}

// titleCase upper-cases the first rune of an attribute's local name, the
// convention used for property bag keys.
func titleCase(name string) string {
	if name == "" {
		return name
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
