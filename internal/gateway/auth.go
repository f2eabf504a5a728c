package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/leadreach/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "none" | "token" | "password"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// Credentials are what a caller presented with a request.
type Credentials struct {
	Token    string
	Password string
}

// ResolveAuth resolves authentication credentials from config and environment.
// Precedence: config value → env variable → empty.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode}

	auth.Token = cfg.Token
	if auth.Token == "" {
		auth.Token = os.Getenv("LEADREACH_GATEWAY_TOKEN")
	}

	auth.Password = cfg.Password
	if auth.Password == "" {
		auth.Password = os.Getenv("LEADREACH_GATEWAY_PASSWORD")
	}

	// Default mode follows whichever secret is available.
	if auth.Mode == "" {
		switch {
		case auth.Token != "":
			auth.Mode = "token"
		case auth.Password != "":
			auth.Mode = "password"
		default:
			auth.Mode = "none"
		}
	}

	return auth
}

// credentialsFromRequest reads a bearer token, a basic-auth password, or a
// token query parameter. The query form exists for webhook senders and
// browsers opening /ws, which cannot set headers.
func credentialsFromRequest(r *http.Request) *Credentials {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return &Credentials{Token: strings.TrimSpace(tok)}
		}
	}
	if _, pass, ok := r.BasicAuth(); ok {
		return &Credentials{Password: pass}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return &Credentials{Token: tok}
	}
	return nil
}

// Authorize checks the presented credentials against the resolved server auth.
func Authorize(serverAuth ResolvedAuth, creds *Credentials) AuthResult {
	if serverAuth.Mode == "none" {
		return AuthResult{OK: true, Method: "none"}
	}
	if creds == nil {
		return AuthResult{OK: false, Reason: "no credentials provided"}
	}

	switch serverAuth.Mode {
	case "token":
		if serverAuth.Token == "" {
			return AuthResult{OK: false, Reason: "server token not configured"}
		}
		if creds.Token == "" {
			return AuthResult{OK: false, Reason: "token required"}
		}
		if !safeEqual(creds.Token, serverAuth.Token) {
			return AuthResult{OK: false, Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: "token"}

	case "password":
		if serverAuth.Password == "" {
			return AuthResult{OK: false, Reason: "server password not configured"}
		}
		if creds.Password == "" {
			return AuthResult{OK: false, Reason: "password required"}
		}
		if !safeEqual(creds.Password, serverAuth.Password) {
			return AuthResult{OK: false, Reason: "password_mismatch"}
		}
		return AuthResult{OK: true, Method: "password"}

	default:
		return AuthResult{OK: false, Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// safeEqual performs a constant-time string comparison to prevent timing attacks.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
