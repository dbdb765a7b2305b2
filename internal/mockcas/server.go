package mockcas

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Server exposes the provider over the CAS HTTP surface.
type Server struct {
	provider *Provider
	client   *http.Client
}

// NewServer wraps a provider. The HTTP client delivers proxy-granting
// tickets to callback URLs and posts single-log-out notifications.
func NewServer(provider *Provider) *Server {
	return &Server{
		provider: provider,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Routes mounts the CAS endpoints on a chi router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogoutPage)
	r.Get("/validate", s.handleValidateV1)
	r.Get("/serviceValidate", s.validateHandler(false, false))
	r.Get("/proxyValidate", s.validateHandler(true, false))
	r.Get("/p3/serviceValidate", s.validateHandler(false, true))
	r.Get("/p3/proxyValidate", s.validateHandler(true, true))
	r.Get("/proxy", s.handleProxy)
}

// handleLoginPage renders a minimal credential form. Tests shortcut it by
// passing username and password as query parameters.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	service := q.Get("service")

	// Gateway requests never prompt; the mock holds no SSO session, so
	// the answer is always "not authenticated".
	if q.Get("gateway") == "true" && q.Get("username") == "" {
		if service == "" {
			http.Error(w, "gateway request without service", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, service, http.StatusFound)
		return
	}

	if username := q.Get("username"); username != "" {
		s.completeLogin(w, r, username, q.Get("password"), service, q.Get("renew") == "true")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<title>Mock CAS Login</title>
<h1>Sign in</h1>
<form method="post" action="login?service=%s&renew=%s">
  <input name="username" placeholder="username" autofocus>
  <input name="password" type="password" placeholder="password">
  <button type="submit">Login</button>
</form>
<p>Demo accounts: alice / bob (password123), admin (admin123)</p>
`, url.QueryEscape(service), url.QueryEscape(r.URL.Query().Get("renew")))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	s.completeLogin(w, r,
		r.PostFormValue("username"), r.PostFormValue("password"),
		q.Get("service"), q.Get("renew") == "true")
}

func (s *Server) completeLogin(w http.ResponseWriter, r *http.Request, username, password, service string, renew bool) {
	user, err := s.provider.ValidateCredentials(username, password)
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}
	if service == "" {
		fmt.Fprintln(w, "Logged in. No service to return to.")
		return
	}

	st := s.provider.IssueServiceTicket(user, serviceKey(service), renew)
	redirect := service
	if strings.Contains(redirect, "?") {
		redirect += "&ticket=" + url.QueryEscape(st)
	} else {
		redirect += "?ticket=" + url.QueryEscape(st)
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (s *Server) handleLogoutPage(w http.ResponseWriter, r *http.Request) {
	if target := r.URL.Query().Get("service"); target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	fmt.Fprintln(w, "Logged out.")
}

// handleValidateV1 serves the protocol v1 plaintext endpoint.
func (s *Server) handleValidateV1(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	t, err := s.provider.RedeemTicket(q.Get("ticket"), serviceKey(q.Get("service")), q.Get("renew") == "true")
	if err != nil {
		fmt.Fprint(w, "no\n\n")
		return
	}
	fmt.Fprintf(w, "yes\n%s\n", t.user.ID)
}

// validateHandler builds the v2/v3 XML endpoints. proxyOK admits PT-
// tickets and emits the proxy chain; withAttributes adds the v3 attribute
// block.
func (s *Server) validateHandler(proxyOK, withAttributes bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")

		tkt := q.Get("ticket")
		if !proxyOK && strings.HasPrefix(tkt, "PT-") {
			writeFailure(w, "INVALID_TICKET", "proxy tickets are not accepted on this endpoint")
			return
		}

		t, err := s.provider.RedeemTicket(tkt, serviceKey(q.Get("service")), q.Get("renew") == "true")
		if err != nil {
			writeFailure(w, "INVALID_TICKET", err.Error())
			return
		}

		var iou string
		if pgtURL := q.Get("pgtUrl"); pgtURL != "" {
			iou = s.deliverGrantingTicket(pgtURL, t)
		}
		writeSuccess(w, t, iou, withAttributes)
	}
}

// deliverGrantingTicket mints a PGT/IOU pair and pushes it to the callback.
// The IOU only appears in the validation response when the callback
// acknowledged with a 2xx.
func (s *Server) deliverGrantingTicket(pgtURL string, t *ticket) string {
	pgt := "PGT-" + uuid.NewString()
	iou := "PGTIOU-" + uuid.NewString()

	cb, err := url.Parse(pgtURL)
	if err != nil {
		return ""
	}
	cbq := cb.Query()
	cbq.Set("pgtId", pgt)
	cbq.Set("pgtIou", iou)
	cb.RawQuery = cbq.Encode()

	resp, err := s.client.Get(cb.String())
	if err != nil {
		log.Printf("mockcas: pgt callback to %s failed: %v", pgtURL, err)
		return ""
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ""
	}

	s.provider.StoreGrantingTicket(pgt, t)
	return iou
}

// handleProxy redeems a PGT for a proxy ticket.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")

	pt, err := s.provider.IssueProxyTicket(q.Get("pgt"), serviceKey(q.Get("targetService")))
	if err != nil {
		fmt.Fprintf(w, `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:proxyFailure code="INVALID_TICKET">%s</cas:proxyFailure>
</cas:serviceResponse>
`, xmlEscape(err.Error()))
		return
	}
	fmt.Fprintf(w, `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:proxySuccess>
    <cas:proxyTicket>%s</cas:proxyTicket>
  </cas:proxySuccess>
</cas:serviceResponse>
`, xmlEscape(pt))
}

// NotifyLogout posts a single-log-out request for a service ticket to the
// service's callback URL.
func (s *Server) NotifyLogout(callbackURL, serviceTicket string) error {
	msg := fmt.Sprintf(`<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="%s" Version="2.0" IssueInstant="%s">
  <samlp:SessionIndex>%s</samlp:SessionIndex>
</samlp:LogoutRequest>`,
		"LR-"+randomToken(16), time.Now().UTC().Format(time.RFC3339), xmlEscape(serviceTicket))

	form := url.Values{"logoutRequest": {msg}}
	resp, err := s.client.PostForm(callbackURL, form)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout notification got status %d", resp.StatusCode)
	}
	return nil
}

func writeFailure(w http.ResponseWriter, code, message string) {
	fmt.Fprintf(w, `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationFailure code="%s">%s</cas:authenticationFailure>
</cas:serviceResponse>
`, xmlEscape(code), xmlEscape(message))
}

func writeSuccess(w http.ResponseWriter, t *ticket, iou string, withAttributes bool) {
	var b strings.Builder
	b.WriteString(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">` + "\n")
	b.WriteString("  <cas:authenticationSuccess>\n")
	fmt.Fprintf(&b, "    <cas:user>%s</cas:user>\n", xmlEscape(t.user.ID))

	if iou != "" {
		fmt.Fprintf(&b, "    <cas:proxyGrantingTicket>%s</cas:proxyGrantingTicket>\n", xmlEscape(iou))
	}

	if withAttributes {
		b.WriteString("    <cas:attributes>\n")
		fmt.Fprintf(&b, "      <cas:authenticationDate>%s</cas:authenticationDate>\n", t.issuedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "      <cas:isFromNewLogin>true</cas:isFromNewLogin>\n")
		fmt.Fprintf(&b, "      <cas:longTermAuthenticationRequestTokenUsed>false</cas:longTermAuthenticationRequestTokenUsed>\n")
		for _, g := range t.user.MemberOf {
			fmt.Fprintf(&b, "      <cas:memberOf>%s</cas:memberOf>\n", xmlEscape(g))
		}
		for name, values := range t.user.Attributes {
			for _, v := range values {
				fmt.Fprintf(&b, "      <cas:%s>%s</cas:%s>\n", name, xmlEscape(v), name)
			}
		}
		b.WriteString("    </cas:attributes>\n")
	}

	if len(t.proxies) > 0 {
		b.WriteString("    <cas:proxies>\n")
		for _, proxy := range t.proxies {
			fmt.Fprintf(&b, "      <cas:proxy>%s</cas:proxy>\n", xmlEscape(proxy))
		}
		b.WriteString("    </cas:proxies>\n")
	}

	b.WriteString("  </cas:authenticationSuccess>\n")
	b.WriteString("</cas:serviceResponse>\n")
	w.Write([]byte(b.String()))
}

// serviceKey normalizes a service URL so that minting and redemption agree
// even when one side percent-encodes query values differently.
func serviceKey(service string) string {
	u, err := url.Parse(service)
	if err != nil {
		return service
	}
	u.RawQuery = u.Query().Encode()
	return u.String()
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
