package cas

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ssoware/cascade/pkg/session"
)

// DefaultCookieName carries the session key on the browser.
const DefaultCookieName = "cascade_session"

// Middleware wires the protocol handler into an HTTP pipeline: it owns the
// session cookie, mounts the callback and impersonation paths, and exposes
// the authentication wrappers applications compose into their routers.
type Middleware struct {
	h          *Handler
	cookieName string
}

// NewMiddleware builds the pipeline wrapper around a handler.
func NewMiddleware(h *Handler) *Middleware {
	return &Middleware{h: h, cookieName: DefaultCookieName}
}

// Handler returns the underlying protocol handler.
func (m *Middleware) Handler() *Handler {
	return m.h
}

// Routes mounts the callback and impersonation endpoints on a chi router.
func (m *Middleware) Routes(r chi.Router) {
	r.Get(m.h.cfg.CallbackPath, m.handleCallback)
	r.Post(m.h.cfg.CallbackPath, m.handleLogoutPost)
	r.HandleFunc(m.h.cfg.ImpersonatePath, m.handleImpersonate)
}

// Authenticate resolves the session cookie into a principal on the request
// context without demanding one. Routes decide authorization themselves.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t := m.resolveSession(w, r); t != nil {
			r = r.WithContext(withPrincipal(r.Context(), t))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth is Authenticate plus a challenge for anonymous requests.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthenticated(r) {
			m.h.Challenge(w, r)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// resolveSession loads the stored ticket named by the session cookie.
// Expired or undecodable sessions are removed and the cookie cleared; the
// request proceeds anonymous.
func (m *Middleware) resolveSession(w http.ResponseWriter, r *http.Request) *session.Ticket {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	t, err := m.h.cfg.Store.Retrieve(r.Context(), cookie.Value)
	if err != nil {
		m.h.cfg.Logger.Warn("session retrieve failed", "error", err)
		m.clearCookie(w)
		return nil
	}
	if t == nil {
		m.clearCookie(w)
		return nil
	}
	if t.Expired(time.Now()) {
		if err := m.h.cfg.Store.Remove(r.Context(), cookie.Value); err != nil {
			m.h.cfg.Logger.Warn("expired session removal failed", "error", err)
		}
		m.clearCookie(w)
		return nil
	}
	return t
}

// handleCallback serves GETs on the callback path: ticket validation and
// the out-of-band proxy-granting-ticket delivery.
func (m *Middleware) handleCallback(w http.ResponseWriter, r *http.Request) {
	result, err := m.h.HandleCallback(r)
	if err != nil {
		// Transport and parse failures surface as a generic server error;
		// the IdP's internals are not the caller's business.
		m.h.cfg.Logger.Error("ticket validation failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	switch result.Status {
	case AuthSuccess:
		m.signIn(w, r, result)
	case AuthFailure:
		// Rejected ticket, untrusted chain or application veto: the user
		// gets a fresh challenge rather than an error page.
		m.h.Challenge(w, r)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// signIn persists the validated ticket, sets the session cookie and issues
// the post-login redirect.
func (m *Middleware) signIn(w http.ResponseWriter, r *http.Request, result *AuthResult) {
	key, err := m.h.cfg.Store.Store(r.Context(), result.Ticket)
	if err != nil {
		m.h.cfg.Logger.Error("storing session failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(m.h.cfg.SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   requestScheme(r) == "https",
	})
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// handleLogoutPost serves POSTs on the callback path. Whether or not the
// body was a single-log-out notification, the response is an empty 200;
// that status is all SLO callers inspect.
func (m *Middleware) handleLogoutPost(w http.ResponseWriter, r *http.Request) {
	m.h.HandleLogout(r)
	w.WriteHeader(http.StatusOK)
}

// handleImpersonate is the reserved impersonation extension point. It
// rejects every request until the flow is specified.
func (m *Middleware) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// SignOut removes the current session, clears the cookie and redirects to
// the CAS logout endpoint.
func (m *Middleware) SignOut(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		if err := m.h.cfg.Store.Remove(r.Context(), cookie.Value); err != nil {
			m.h.cfg.Logger.Warn("sign-out removal failed", "error", err)
		}
	}
	m.clearCookie(w)

	u, err := m.h.LogoutURL(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (m *Middleware) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
