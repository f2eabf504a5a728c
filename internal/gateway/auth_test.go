package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/leadreach/internal/config"
)

func TestResolveAuth(t *testing.T) {
	t.Setenv("LEADREACH_GATEWAY_TOKEN", "")
	t.Setenv("LEADREACH_GATEWAY_PASSWORD", "")

	assert.Equal(t, "none", ResolveAuth(config.GatewayAuth{}).Mode)
	assert.Equal(t, "token", ResolveAuth(config.GatewayAuth{Token: "x"}).Mode)
	assert.Equal(t, "password", ResolveAuth(config.GatewayAuth{Password: "x"}).Mode)
	assert.Equal(t, "none", ResolveAuth(config.GatewayAuth{Mode: "none", Token: "x"}).Mode)

	t.Setenv("LEADREACH_GATEWAY_TOKEN", "from-env")
	auth := ResolveAuth(config.GatewayAuth{Mode: "token"})
	assert.Equal(t, "from-env", auth.Token)
	assert.Equal(t, "cfg", ResolveAuth(config.GatewayAuth{Mode: "token", Token: "cfg"}).Token)
}

func TestAuthorize(t *testing.T) {
	tokenAuth := ResolvedAuth{Mode: "token", Token: "secret"}
	passAuth := ResolvedAuth{Mode: "password", Password: "hunter2"}

	tests := []struct {
		name   string
		server ResolvedAuth
		creds  *Credentials
		ok     bool
		reason string
	}{
		{"none mode", ResolvedAuth{Mode: "none"}, nil, true, ""},
		{"no creds", tokenAuth, nil, false, "no credentials provided"},
		{"token ok", tokenAuth, &Credentials{Token: "secret"}, true, ""},
		{"token mismatch", tokenAuth, &Credentials{Token: "guess"}, false, "token_mismatch"},
		{"token missing", tokenAuth, &Credentials{Password: "secret"}, false, "token required"},
		{"server token unset", ResolvedAuth{Mode: "token"}, &Credentials{Token: "x"}, false, "server token not configured"},
		{"password ok", passAuth, &Credentials{Password: "hunter2"}, true, ""},
		{"password mismatch", passAuth, &Credentials{Password: "wrong"}, false, "password_mismatch"},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &Credentials{Token: "x"}, false, "unknown auth mode: oauth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.creds)
			assert.Equal(t, tt.ok, res.OK)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, res.Reason)
			}
		})
	}
}

func TestCredentialsFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Nil(t, credentialsFromRequest(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, &Credentials{Token: "abc"}, credentialsFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.SetBasicAuth("operator", "pw")
	assert.Equal(t, &Credentials{Password: "pw"}, credentialsFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	assert.Equal(t, &Credentials{Token: "q"}, credentialsFromRequest(r))
}

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("abc", "abc"))
	assert.False(t, safeEqual("abc", "abd"))
	assert.False(t, safeEqual("abc", "abcd"))
	assert.True(t, safeEqual("", ""))
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		cfg  config.GatewayConfig
		want string
	}{
		{config.GatewayConfig{Port: 18790, Bind: "loopback"}, "127.0.0.1:18790"},
		{config.GatewayConfig{Port: 80, Bind: "lan"}, "0.0.0.0:80"},
		{config.GatewayConfig{Port: 81, Bind: "custom", CustomBindHost: "10.0.0.5"}, "10.0.0.5:81"},
		{config.GatewayConfig{Port: 82, Bind: "custom"}, "0.0.0.0:82"},
		{config.GatewayConfig{Port: 83}, "127.0.0.1:83"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
	}
}

func TestLimiterPool(t *testing.T) {
	p := newLimiterPool(0)
	for i := 0; i < 100; i++ {
		assert.True(t, p.allow("a"))
	}

	p = newLimiterPool(1)
	assert.True(t, p.allow("a"))
	assert.True(t, p.allow("a"))
	assert.False(t, p.allow("a"))
	assert.True(t, p.allow("b"), "limits are per client")
}

func TestAuthRateLimiter(t *testing.T) {
	l := newAuthRateLimiter()
	assert.True(t, l.allow("10.0.0.1:5555"))
	for i := 0; i < authRateMaxFails; i++ {
		l.recordFailure("10.0.0.1:5555")
	}
	assert.False(t, l.allow("10.0.0.1:6666"), "keyed by host, not port")
	assert.True(t, l.allow("10.0.0.2:5555"))
}

func TestIsOriginAllowed(t *testing.T) {
	assert.False(t, isOriginAllowed("https://a.com", nil))
	assert.True(t, isOriginAllowed("https://a.com", []string{"https://a.com"}))
	assert.True(t, isOriginAllowed("https://b.com", []string{"*"}))
}
