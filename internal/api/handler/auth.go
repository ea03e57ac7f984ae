package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "sapex-backend"
	ctxUserID   = "user_id"

	// linkAudience marks one-time tokens that link a Telegram chat to a helper.
	linkAudience = "telegram-link"
	LinkTokenTTL = 10 * time.Minute
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Auth issues and verifies HS256 tokens whose subject is the user id.
type Auth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuth(secret string, ttl time.Duration) *Auth {
	return &Auth{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *Auth) Issue(userID string) (string, error) {
	return a.sign(userID, a.ttl, nil)
}

// IssueLink signs a short-lived token the bot accepts in /start.
func (a *Auth) IssueLink(userID string) (string, error) {
	return a.sign(userID, LinkTokenTTL, jwt.ClaimStrings{linkAudience})
}

func (a *Auth) sign(userID string, ttl time.Duration, aud jwt.ClaimStrings) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    tokenIssuer,
		Audience:  aud,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify returns the user id carried by a session token. Link tokens are
// rejected.
func (a *Auth) Verify(tokenString string) (string, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return "", err
	}
	if len(claims.Audience) > 0 {
		return "", fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// VerifyLink returns the helper id carried by a link token.
func (a *Auth) VerifyLink(tokenString string) (string, error) {
	claims, err := a.parse(tokenString, jwt.WithAudience(linkAudience))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (a *Auth) parse(tokenString string, opts ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	opts = append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}, opts...)
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil }, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims, nil
}

// tokenFromRequest reads a bearer header, or the token query parameter
// used by browser websocket clients.
func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return c.Query("token")
}

// Identify stores the caller's id when a valid token is present and lets
// anonymous requests through.
func (a *Auth) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := tokenFromRequest(c); tok != "" {
			if userID, err := a.Verify(tok); err == nil {
				c.Set(ctxUserID, userID)
			}
		}
		c.Next()
	}
}

// RequireUser rejects requests without a valid token.
func (a *Auth) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := tokenFromRequest(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
			return
		}
		userID, err := a.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Error()})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// UserID is the authenticated caller, or "".
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetAnonID creates an anonymous user id and a token for it.
func (h *Handler) GetAnonID(c *gin.Context) {
	anonID := uuid.NewString()
	token, err := h.Auth.Issue(anonID)
	if err != nil {
		respondError(c, fmt.Errorf("issue token: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": anonID})
}
