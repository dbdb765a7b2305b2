package cas

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/ssoware/cascade/pkg/session"
)

// logoutRequest is the SAML-flavored notification CAS posts for single
// log-out. Only the session index matters; element matching is by local
// name so namespace variations between CAS servers don't break it.
type logoutRequest struct {
	XMLName      xml.Name `xml:"LogoutRequest"`
	SessionIndex string   `xml:"SessionIndex"`
}

// parseLogoutRequest extracts the service ticket named by an SLO payload.
// Malformed XML and well-formed XML without a session index both come back
// as not-ok: arbitrary POSTs may legitimately hit the callback path.
func parseLogoutRequest(raw string) (string, bool) {
	var req logoutRequest
	if err := xml.Unmarshal([]byte(raw), &req); err != nil {
		return "", false
	}
	ticket := strings.TrimSpace(req.SessionIndex)
	return ticket, ticket != ""
}

// HandleLogout processes a POST on the callback path as a potential single
// log-out notification. It returns whether the request was one; either way
// the HTTP response should be an empty 200, which is all SLO callers look
// at.
func (h *Handler) HandleLogout(r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		return false
	}
	raw := r.PostFormValue("logoutRequest")
	if raw == "" {
		return false
	}

	ticket, ok := parseLogoutRequest(raw)
	if !ok {
		return false
	}

	key := session.SessionKey(ticket)
	if err := h.cfg.Store.Remove(r.Context(), key); err != nil {
		h.cfg.Logger.Warn("single log-out removal failed", "ticket", ticket, "error", err)
		return true
	}
	h.cfg.Logger.Info("single log-out", "ticket", ticket)

	if cb := h.cfg.Callbacks.OnSignOut; cb != nil {
		cb(r.Context(), ticket)
	}
	return true
}
