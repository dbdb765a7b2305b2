package cas

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssoware/cascade/pkg/session"
)

func newTestHandler(t *testing.T, mutate func(*Config)) *Handler {
	t.Helper()

	serverURL, err := url.Parse("https://cas.example.com/cas")
	require.NoError(t, err)

	store, err := session.NewTicketStore(testStoreOptions(t))
	require.NoError(t, err)

	cfg := Config{ServerURL: serverURL, Store: store}
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := New(cfg)
	require.NoError(t, err)
	return h
}

func testStoreOptions(t *testing.T) session.TicketStoreOptions {
	t.Helper()
	codec, err := session.NewPayloadCodec([]byte("test-secret"))
	require.NoError(t, err)
	backend := session.NewMemoryBackend()
	return session.TicketStoreOptions{
		Codec:         codec,
		GetSession:    backend.Get,
		StoreSession:  backend.Put,
		RemoveSession: func(ctx context.Context, key string) error { return backend.Delete(ctx, key) },
	}
}

func TestServiceURLStripsCASParams(t *testing.T) {
	h := newTestHandler(t, nil)

	r := httptest.NewRequest("GET", "http://app.example.com/Session/Validate?ticket=ST-1&renew=true&returnUrl=%2Fdocs", nil)
	u := h.serviceURL(r)

	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, DefaultCallbackPath, u.Path)
	assert.Equal(t, "/docs", u.Query().Get(ReturnURLParam))
	assert.Empty(t, u.Query().Get("ticket"))
	assert.Empty(t, u.Query().Get("renew"))
}

func TestServiceURLHonorsForwardedProto(t *testing.T) {
	h := newTestHandler(t, nil)

	r := httptest.NewRequest("GET", "http://app.example.com/Session/Validate", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https", h.serviceURL(r).Scheme)
}

func TestLoginURL(t *testing.T) {
	h := newTestHandler(t, nil)

	r := httptest.NewRequest("GET", "http://app.example.com/docs", nil)
	u, err := h.loginURL(r, "/docs")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "https://cas.example.com/cas/login", parsed.Scheme+"://"+parsed.Host+parsed.Path)

	service, err := url.Parse(parsed.Query().Get("service"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", service.Host)
	assert.Equal(t, DefaultCallbackPath, service.Path)
	assert.Equal(t, "/docs", service.Query().Get(ReturnURLParam))

	assert.Empty(t, parsed.Query().Get("renew"))
	assert.Empty(t, parsed.Query().Get("gateway"))
}

func TestLoginURLRenewTakesPrecedenceOverGateway(t *testing.T) {
	h := newTestHandler(t, func(c *Config) {
		c.Renew = true
		c.Gateway = true
	})

	r := httptest.NewRequest("GET", "http://app.example.com/", nil)
	u, err := h.loginURL(r, "")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "true", parsed.Query().Get("renew"))
	assert.Empty(t, parsed.Query().Get("gateway"))
}

func TestLoginURLGateway(t *testing.T) {
	h := newTestHandler(t, func(c *Config) { c.Gateway = true })

	r := httptest.NewRequest("GET", "http://app.example.com/", nil)
	u, err := h.loginURL(r, "")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "true", parsed.Query().Get("gateway"))
}

func TestLoginURLMethodIsV3Only(t *testing.T) {
	v2 := newTestHandler(t, func(c *Config) {
		c.ProtocolVersion = V2
		c.Method = "POST"
	})
	v3 := newTestHandler(t, func(c *Config) {
		c.ProtocolVersion = V3
		c.Method = "POST"
	})

	r := httptest.NewRequest("GET", "http://app.example.com/", nil)

	u2, err := v2.loginURL(r, "")
	require.NoError(t, err)
	parsed2, err := url.Parse(u2)
	require.NoError(t, err)
	assert.Empty(t, parsed2.Query().Get("method"))

	u3, err := v3.loginURL(r, "")
	require.NoError(t, err)
	parsed3, err := url.Parse(u3)
	require.NoError(t, err)
	assert.Equal(t, "POST", parsed3.Query().Get("method"))
}

func TestValidateEndpointSelection(t *testing.T) {
	cases := []struct {
		version     ProtocolVersion
		proxyClient bool
		want        string
	}{
		{V1, false, "validate"},
		{V1, true, "validate"},
		{V2, false, "serviceValidate"},
		{V2, true, "proxyValidate"},
		{V3, false, "p3/serviceValidate"},
		{V3, true, "p3/proxyValidate"},
	}
	for _, tc := range cases {
		h := newTestHandler(t, func(c *Config) {
			c.ProtocolVersion = tc.version
			c.ProxyClient = tc.proxyClient
		})
		assert.Equal(t, tc.want, h.validateEndpoint(), "version %d proxyClient %v", tc.version, tc.proxyClient)
	}
}

func TestValidateURL(t *testing.T) {
	h := newTestHandler(t, func(c *Config) {
		c.ProtocolVersion = V3
		c.Renew = true
		c.ProxyServer = true
		c.ProxyCallbackURL = "https://app.example.com/Session/Validate"
	})

	service, err := url.Parse("https://app.example.com/Session/Validate")
	require.NoError(t, err)

	u, err := h.validateURL(service, "ST-42")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "/cas/p3/serviceValidate", parsed.Path)
	assert.Equal(t, "ST-42", parsed.Query().Get("ticket"))
	assert.Equal(t, service.String(), parsed.Query().Get("service"))
	assert.Equal(t, "true", parsed.Query().Get("renew"))
	assert.Equal(t, h.cfg.ProxyCallbackURL, parsed.Query().Get("pgtUrl"))
}

func TestLocalRedirect(t *testing.T) {
	cases := []struct {
		target string
		ok     bool
	}{
		{"/docs", true},
		{"/", true},
		{"/a/b?c=d", true},
		{"//evil.example.com", false},
		{"/\\evil.example.com", false},
		{"https://evil.example.com", false},
		{"docs", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, localRedirect(tc.target), "target %q", tc.target)
	}
}

func TestPostLoginRedirect(t *testing.T) {
	plain := newTestHandler(t, nil)
	assert.Equal(t, "/docs", plain.postLoginRedirect("/docs"))
	assert.Equal(t, "/", plain.postLoginRedirect(""))
	assert.Equal(t, "/", plain.postLoginRedirect("//evil.example.com"))

	withLogin := newTestHandler(t, func(c *Config) { c.LoginPath = "/after-login" })
	assert.Equal(t, "/after-login?returnUrl=%2Fdocs", withLogin.postLoginRedirect("/docs"))
	assert.Equal(t, "/after-login", withLogin.postLoginRedirect(""))
	assert.Equal(t, "/after-login", withLogin.postLoginRedirect("https://evil.example.com"))
}

func TestLogoutURL(t *testing.T) {
	h := newTestHandler(t, nil)

	r := httptest.NewRequest("GET", "http://app.example.com/logout", nil)
	u, err := h.LogoutURL(r)
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "/cas/logout", parsed.Path)
	assert.Equal(t, "http://app.example.com/", parsed.Query().Get("service"))
}
