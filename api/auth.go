package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tidewell/agentdeck/auth"
	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/log"
)

var oauthLogger = log.GetLogger("ApiOAuth")

const stateCookieName = "oauth_state"

// OAuthAuthorize handles GET /api/oauth/authorize
// Starts the authorization code flow by redirecting to the identity provider.
func OAuthAuthorize(c *gin.Context) {
	provider, err := auth.GetOIDCProvider()
	if err != nil {
		RespondServiceUnavailable(c, "OAuth is not configured")
		return
	}

	secure := !config.Get().IsDevelopment()

	// Random state, echoed back by the provider and checked in the callback
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, state, 300, "/api/oauth", "", secure, true)

	c.Redirect(http.StatusFound, provider.GetAuthCodeURL(state))
}

// OAuthCallback handles GET /api/oauth/callback
// Exchanges the authorization code for tokens and sets session cookies.
// Failures redirect back to the frontend with an error query parameter
// rather than rendering a JSON body in the browser.
func OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error")
		if errMsg != "" {
			oauthLogger.Error().
				Str("error", errMsg).
				Str("description", c.Query("error_description")).
				Msg("OAuth callback error")
			c.Redirect(http.StatusFound, "/?error="+url.QueryEscape(errMsg))
			return
		}
		c.Redirect(http.StatusFound, "/?error=no_code")
		return
	}

	// State must match the cookie set in OAuthAuthorize
	expectedState, _ := c.Cookie(stateCookieName)
	c.SetCookie(stateCookieName, "", -1, "/api/oauth", "", false, true)
	if expectedState == "" || c.Query("state") != expectedState {
		oauthLogger.Warn().Msg("OAuth callback state mismatch")
		c.Redirect(http.StatusFound, "/?error=state_mismatch")
		return
	}

	provider, err := auth.GetOIDCProvider()
	if err != nil {
		RespondServiceUnavailable(c, "OAuth is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	token, err := provider.Exchange(ctx, code)
	if err != nil {
		oauthLogger.Error().Err(err).Msg("failed to exchange code for tokens")
		c.Redirect(http.StatusFound, "/?error=token_exchange_failed")
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		oauthLogger.Error().Msg("token response missing id_token")
		c.Redirect(http.StatusFound, "/?error=invalid_token")
		return
	}

	idToken, err := provider.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		oauthLogger.Error().Err(err).Msg("failed to validate ID token")
		c.Redirect(http.StatusFound, "/?error=invalid_token")
		return
	}

	var claims auth.IdentityClaims
	if err := idToken.Claims(&claims); err != nil {
		oauthLogger.Error().Err(err).Msg("failed to parse ID token claims")
		c.Redirect(http.StatusFound, "/?error=invalid_token")
		return
	}

	username := claims.Username()
	if !auth.VerifyExpectedUsername(username) {
		oauthLogger.Warn().Str("username", username).Msg("username not allowed")
		c.Redirect(http.StatusFound, "/?error=unauthorized_user")
		return
	}

	setAuthCookies(c, rawIDToken, idToken.Expiry, token.RefreshToken)

	oauthLogger.Info().
		Str("sub", claims.Sub).
		Str("username", username).
		Msg("OAuth login successful")

	c.Redirect(http.StatusFound, "/")
}

// OAuthRefresh handles POST /api/oauth/refresh
func OAuthRefresh(c *gin.Context) {
	refreshToken := c.Request.Header.Get("X-Refresh-Token")
	if refreshToken == "" {
		refreshToken, _ = c.Cookie("refresh_token")
	}
	if refreshToken == "" {
		RespondUnauthorized(c, "No refresh token provided")
		return
	}

	provider, err := auth.GetOIDCProvider()
	if err != nil {
		RespondServiceUnavailable(c, "OAuth is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	src := provider.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := src.Token()
	if err != nil {
		oauthLogger.Error().Err(err).Msg("failed to refresh tokens")
		RespondUnauthorized(c, "Token refresh failed")
		return
	}

	rawIDToken, ok := newToken.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		oauthLogger.Error().Msg("refresh response missing id_token")
		RespondUnauthorized(c, "Token refresh failed")
		return
	}

	idToken, err := provider.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		oauthLogger.Error().Err(err).Msg("refreshed ID token failed validation")
		RespondUnauthorized(c, "Token refresh failed")
		return
	}

	// The provider may rotate the refresh token; keep the old cookie if not
	setAuthCookies(c, rawIDToken, idToken.Expiry, newToken.RefreshToken)

	RespondData(c, gin.H{
		"expiresIn": int(time.Until(idToken.Expiry).Seconds()),
	})
}

// OAuthToken handles GET /api/oauth/token
// Reports authentication status for the current request. Always 200 so the
// frontend can poll it without tripping error interceptors.
func OAuthToken(c *gin.Context) {
	if !auth.IsAuthRequired() {
		RespondData(c, gin.H{"authenticated": true, "mode": "none"})
		return
	}

	accessToken := c.Request.Header.Get("Authorization")
	if strings.HasPrefix(accessToken, "Bearer ") {
		accessToken = strings.TrimPrefix(accessToken, "Bearer ")
	} else {
		accessToken, _ = c.Cookie("access_token")
	}
	if accessToken == "" {
		RespondData(c, gin.H{"authenticated": false})
		return
	}

	provider, err := auth.GetOIDCProvider()
	if err != nil {
		RespondData(c, gin.H{"authenticated": false, "error": "oauth_not_configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	idToken, err := provider.VerifyIDToken(ctx, accessToken)
	if err != nil {
		oauthLogger.Debug().Err(err).Msg("token validation failed")
		RespondData(c, gin.H{"authenticated": false, "error": "invalid_token"})
		return
	}

	var claims auth.IdentityClaims
	if err := idToken.Claims(&claims); err != nil {
		RespondData(c, gin.H{"authenticated": false, "error": "invalid_token"})
		return
	}

	username := claims.Username()
	if !auth.VerifyExpectedUsername(username) {
		RespondData(c, gin.H{"authenticated": false, "error": "unauthorized_user"})
		return
	}

	RespondData(c, gin.H{
		"authenticated": true,
		"username":      username,
		"sub":           claims.Sub,
		"email":         claims.Email,
	})
}

// OAuthLogout handles POST /api/oauth/logout
func OAuthLogout(c *gin.Context) {
	clearAuthCookies(c)
	RespondData(c, gin.H{"success": true})
}

// setAuthCookies stores the session tokens. The access_token cookie carries
// the ID token; that is what the auth middleware verifies.
func setAuthCookies(c *gin.Context, rawIDToken string, expiry time.Time, refreshToken string) {
	secure := !config.Get().IsDevelopment()
	c.SetSameSite(http.SameSiteLaxMode)

	c.SetCookie("access_token", rawIDToken, int(time.Until(expiry).Seconds()), "/", "", secure, true)

	if refreshToken != "" {
		// Scoped to the refresh endpoint so it never rides along on API calls
		c.SetCookie("refresh_token", refreshToken, 60*60*24*30, "/api/oauth/refresh", "", secure, true)
	}
}

func clearAuthCookies(c *gin.Context) {
	c.SetCookie("access_token", "", -1, "/", "", false, true)
	c.SetCookie("refresh_token", "", -1, "/api/oauth/refresh", "", false, true)
}
