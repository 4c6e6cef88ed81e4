package http

import (
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/eden/service"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "session"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService   *service.AuthService
	secureCookies bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, secureCookies bool) *AuthHandlers {
	return &AuthHandlers{
		authService:   authService,
		secureCookies: secureCookies,
	}
}

// Nonce issues a sign-in message for the address query parameter
func (h *AuthHandlers) Nonce(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Address parameter is required"})
		return
	}

	res, err := h.authService.CreateChallenge(c.Request.Context(), address, hostOnly(c.Request), originOf(c.Request))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   res.Message,
		"nonce":     res.Nonce,
		"expiresAt": res.ExpiresAt,
	})
}

// Verify checks a signed message and sets the session cookie
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	signIn, err := h.authService.Verify(c.Request.Context(), req.Message, req.Signature)
	if err != nil {
		abortWithError(c, err)
		return
	}

	maxAge := int(time.Until(signIn.Session.ExpiresAt).Seconds())
	h.setSessionCookie(c, signIn.Token, maxAge)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"userId":  signIn.Identity.ID,
	})
}

// Session reports whether the session cookie is valid
func (h *AuthHandlers) Session(c *gin.Context) {
	token, err := c.Cookie(SessionCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}

	session, err := h.authService.ValidateSession(token)
	if err != nil {
		h.setSessionCookie(c, "", -1)
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"userId":        session.SubjectID,
		"expiresAt":     session.ExpiresAt,
	})
}

// Logout clears the session cookie. Tokens cannot be revoked server side.
func (h *AuthHandlers) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandlers) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, maxAge, "/", "", h.secureCookies, true)
}

func hostOnly(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	if host == "" {
		return "localhost"
	}
	return host
}

func originOf(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host
}
