// Package middleware holds the gin request layer shared by every route:
// authentication, rate limiting, request logging and HTTP metrics.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/navid-fn/tradedesk/internal/models"
)

const principalKey = "principal"

// Claims is the token payload. Username is required; Shift is recorded on
// completed and checked trades.
type Claims struct {
	Username string `json:"username"`
	Shift    string `json:"shift,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig verifies and signs bearer tokens.
type TokenConfig struct {
	Secret    []byte
	Algorithm string
}

func (tc TokenConfig) method() jwt.SigningMethod {
	if m := jwt.GetSigningMethod(tc.Algorithm); m != nil {
		return m
	}
	return jwt.SigningMethodHS256
}

// Sign issues a token for p that expires after ttl.
func (tc TokenConfig) Sign(p models.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(tc.method(), Claims{
		Username: p.Username,
		Shift:    p.Shift,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(tc.Secret)
}

// Parse verifies token and returns the principal it carries.
func (tc TokenConfig) Parse(token string) (models.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return tc.Secret, nil
	}, jwt.WithValidMethods([]string{tc.method().Alg()}))
	if err != nil {
		return models.Principal{}, err
	}
	if claims.Username == "" {
		return models.Principal{}, errors.New("token has no username")
	}
	return models.Principal{Username: claims.Username, Shift: claims.Shift}, nil
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// Auth rejects requests without a valid bearer token and stores the
// principal on the context.
func Auth(tc TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		p, err := tc.Parse(token)
		if errors.Is(err, jwt.ErrTokenExpired) {
			unauthorized(c, "token has expired")
			return
		}
		if err != nil {
			unauthorized(c, "could not validate credentials")
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the operator set by Auth.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}
