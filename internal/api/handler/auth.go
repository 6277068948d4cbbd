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

const tokenIssuer = "pairup-service"

// Identity is what a valid token carries. AnonID is the connection id; UserID is set
// only for tokens linked to an account.
type Identity struct {
	AnonID string
	UserID string
}

// GenerateToken signs a token for anonID, optionally linked to userID.
func GenerateToken(secret []byte, anonID, userID string, expiry time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"anon_id": anonID,
		"exp":     time.Now().Add(expiry).Unix(),
		"iss":     tokenIssuer,
	}
	if userID != "" {
		claims["user_id"] = userID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken validates the signature, expiry and issuer of tokenString.
func ParseToken(secret []byte, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("unexpected claims type")
	}
	anonID, _ := claims["anon_id"].(string)
	if anonID == "" {
		return Identity{}, errors.New("token has no anon_id")
	}
	userID, _ := claims["user_id"].(string)
	return Identity{AnonID: anonID, UserID: userID}, nil
}

// GetAnonID issues a fresh anonymous identity.
func (h *Handler) GetAnonID(c *gin.Context) {
	anonID := uuid.New().String()

	token, err := GenerateToken(h.JWTSecret, anonID, "", h.JWTExpiry)
	if err != nil {
		h.logger.Error("failed to sign token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": anonID})
}

// identify reads the token from the Authorization header or the token query
// parameter, since browsers cannot set headers on a websocket handshake.
func (h *Handler) identify(c *gin.Context) (Identity, error) {
	tokenString := c.Query("token")
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if tokenString == "" {
		return Identity{}, errors.New("authorization token missing")
	}
	return ParseToken(h.JWTSecret, tokenString)
}
