package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/auth"
	"github.com/tidewell/agentdeck/log"
)

var (
	errNoToken   = errors.New("missing or invalid token")
	errWrongUser = errors.New("unauthorized user")
)

// AuthMiddleware returns a Gin middleware that enforces authentication when
// an OIDC issuer is configured. The default mode is open access, which suits
// a console bound to localhost.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.IsAuthRequired() {
			c.Next()
			return
		}

		if err := validateBearerToken(c); err != nil {
			if errors.Is(err, errWrongUser) {
				// Valid token, wrong account
				RespondForbidden(c, "User not allowed")
			} else {
				RespondUnauthorized(c, "Missing or invalid token")
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

// validateBearerToken validates the ID token from the Authorization header
// or the access_token cookie
func validateBearerToken(c *gin.Context) error {
	accessToken := c.Request.Header.Get("Authorization")
	if strings.HasPrefix(accessToken, "Bearer ") {
		accessToken = strings.TrimPrefix(accessToken, "Bearer ")
	} else {
		var err error
		accessToken, err = c.Cookie("access_token")
		if err != nil || accessToken == "" {
			return errNoToken
		}
	}

	provider, err := auth.GetOIDCProvider()
	if err != nil {
		log.Error().Err(err).Msg("failed to get OIDC provider for token validation")
		return errNoToken
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	idToken, err := provider.VerifyIDToken(ctx, accessToken)
	if err != nil {
		log.Debug().Err(err).Msg("token validation failed")
		return errNoToken
	}

	var claims auth.IdentityClaims
	if err := idToken.Claims(&claims); err != nil {
		log.Error().Err(err).Msg("failed to parse token claims")
		return errNoToken
	}
	username := claims.Username()

	// Single-operator deployment: only the expected user gets in
	if !auth.VerifyExpectedUsername(username) {
		log.Warn().Str("username", username).Msg("token has unauthorized username")
		return errWrongUser
	}

	// Store identity in context for downstream handlers
	c.Set("username", username)
	c.Set("sub", claims.Sub)

	return nil
}
