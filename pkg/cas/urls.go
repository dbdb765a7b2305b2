package cas

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// casParams are stripped from the service URL before it is sent to CAS; the
// server compares service strings byte-for-byte, so the ticket and flow
// parameters from the current request must not leak into it.
var casParams = []string{"ticket", "renew", "gateway", "service", "pgtId", "pgtIou"}

func sanitizedURL(u *url.URL) *url.URL {
	clean := *u
	q := clean.Query()
	for _, p := range casParams {
		q.Del(p)
	}
	clean.RawQuery = q.Encode()
	return &clean
}

// requestScheme resolves the external scheme of a request, honoring the
// reverse proxy's X-Forwarded-Proto header.
func requestScheme(r *http.Request) string {
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// serviceURL builds the service identifier sent to CAS: the external
// scheme/host of the current request plus the callback path, preserving the
// return-url parameter and dropping CAS flow parameters.
func (h *Handler) serviceURL(r *http.Request) *url.URL {
	u := &url.URL{
		Scheme: requestScheme(r),
		Host:   r.Host,
		Path:   h.cfg.CallbackPath,
	}
	if ret := r.URL.Query().Get(ReturnURLParam); ret != "" {
		q := u.Query()
		q.Set(ReturnURLParam, ret)
		u.RawQuery = q.Encode()
	}
	return sanitizedURL(u)
}

// loginURL builds the CAS login redirect for a challenge, with returnURL
// carried through the service parameter so the callback can restore it.
func (h *Handler) loginURL(r *http.Request, returnURL string) (string, error) {
	u, err := h.cfg.ServerURL.Parse(path.Join(h.cfg.ServerURL.Path, "login"))
	if err != nil {
		return "", err
	}

	service := &url.URL{
		Scheme: requestScheme(r),
		Host:   r.Host,
		Path:   h.cfg.CallbackPath,
	}
	if returnURL != "" {
		sq := service.Query()
		sq.Set(ReturnURLParam, returnURL)
		service.RawQuery = sq.Encode()
	}

	q := u.Query()
	q.Set("service", service.String())
	// renew and gateway are mutually exclusive on the wire; renew wins.
	switch {
	case h.cfg.Renew:
		q.Set("renew", "true")
	case h.cfg.Gateway:
		q.Set("gateway", "true")
	}
	if h.cfg.ProtocolVersion == V3 && h.cfg.Method != "" {
		q.Set("method", h.cfg.Method)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// validateEndpoint returns the path of the validation endpoint for the
// configured protocol version. Proxy-validate is selected whenever this
// application accepts proxy tickets.
func (h *Handler) validateEndpoint() string {
	switch h.cfg.ProtocolVersion {
	case V1:
		return "validate"
	case V3:
		if h.cfg.ProxyClient {
			return "p3/proxyValidate"
		}
		return "p3/serviceValidate"
	default:
		if h.cfg.ProxyClient {
			return "proxyValidate"
		}
		return "serviceValidate"
	}
}

// validateURL builds the outbound ticket-validation request URL.
func (h *Handler) validateURL(service *url.URL, ticket string) (string, error) {
	u, err := h.cfg.ServerURL.Parse(path.Join(h.cfg.ServerURL.Path, h.validateEndpoint()))
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("service", service.String())
	q.Set("ticket", ticket)
	if h.cfg.Renew {
		q.Set("renew", "true")
	}
	if h.cfg.ProxyServer {
		q.Set("pgtUrl", h.cfg.ProxyCallbackURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// proxyURL builds the outbound proxy-ticket request URL.
func (h *Handler) proxyURL(targetService, pgt string) (string, error) {
	u, err := h.cfg.ServerURL.Parse(path.Join(h.cfg.ServerURL.Path, "proxy"))
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("targetService", targetService)
	q.Set("pgt", pgt)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LogoutURL builds the CAS logout URL, carrying the application's base URL
// as the service parameter so CAS can send the user back.
func (h *Handler) LogoutURL(r *http.Request) (string, error) {
	u, err := h.cfg.ServerURL.Parse(path.Join(h.cfg.ServerURL.Path, "logout"))
	if err != nil {
		return "", err
	}

	service := &url.URL{Scheme: requestScheme(r), Host: r.Host, Path: "/"}
	q := u.Query()
	q.Set("service", service.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// localRedirect reports whether target is safe as a same-site redirect:
// it must be path-absolute and not scheme-relative. Anything else is an
// open-redirect vector and is discarded.
func localRedirect(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, "/\\")
}

// postLoginRedirect resolves the destination after a successful validation:
// the configured login path with the return URL appended, else the return
// URL itself, else the application root.
func (h *Handler) postLoginRedirect(returnURL string) string {
	if !localRedirect(returnURL) {
		returnURL = ""
	}
	if h.cfg.LoginPath != "" {
		if returnURL == "" {
			return h.cfg.LoginPath
		}
		return h.cfg.LoginPath + "?" + ReturnURLParam + "=" + url.QueryEscape(returnURL)
	}
	if returnURL != "" {
		return returnURL
	}
	return "/"
}
