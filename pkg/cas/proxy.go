package cas

import (
	"context"
	"errors"
	"fmt"
)

// ProxyTicket redeems the stored proxy-granting ticket for a proxy ticket
// usable against targetService. The preconditions are configuration-class
// failures: calling this without proxy-server mode, without a PGT, or on
// protocol version 1 is a programming error, not a runtime condition.
func (h *Handler) ProxyTicket(ctx context.Context, pgt, targetService string) (string, error) {
	if !h.cfg.ProxyServer {
		return "", errors.New("cas: not configured as a proxy server")
	}
	if pgt == "" {
		return "", errors.New("cas: no proxy granting ticket held")
	}
	if h.cfg.ProtocolVersion < V2 {
		return "", fmt.Errorf("cas: protocol version %d cannot issue proxy tickets", h.cfg.ProtocolVersion)
	}

	u, err := h.proxyURL(targetService, pgt)
	if err != nil {
		return "", fmt.Errorf("cas: build proxy URL: %w", err)
	}

	body, err := h.get(ctx, u)
	if err != nil {
		return "", err
	}

	pt, err := ParseProxyResponse(body)
	if err != nil {
		return "", err
	}
	h.cfg.Logger.Debug("proxy ticket issued", "target", targetService)
	return pt, nil
}
