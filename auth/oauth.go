package auth

import (
	"strings"

	"github.com/tidewell/agentdeck/config"
)

// AuthMode represents the authentication mode
type AuthMode string

const (
	AuthModeNone  AuthMode = "none"
	AuthModeOAuth AuthMode = "oauth"
)

// GetAuthMode returns the current authentication mode
func GetAuthMode() AuthMode {
	cfg := config.Get()

	if strings.ToLower(cfg.AuthMode) == "oauth" {
		return AuthModeOAuth
	}
	return AuthModeNone
}

// IsOAuthEnabled checks if OAuth is enabled
func IsOAuthEnabled() bool {
	return GetAuthMode() == AuthModeOAuth
}

// IsAuthRequired checks if any auth is required
func IsAuthRequired() bool {
	return GetAuthMode() != AuthModeNone
}

// VerifyExpectedUsername verifies the username matches the expected username
func VerifyExpectedUsername(username string) bool {
	cfg := config.Get()

	if cfg.OAuthExpectedUsername == "" {
		return true // No expected username configured, accept any
	}

	return username == cfg.OAuthExpectedUsername
}

// IdentityClaims are the ID token claims the app cares about
type IdentityClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
}

// Username derives a username from the claims, preferring the explicit
// preferred_username, then the email local part, then the subject
func (c IdentityClaims) Username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	if c.Email != "" {
		return strings.Split(c.Email, "@")[0]
	}
	return c.Sub
}
