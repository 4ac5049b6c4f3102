package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures bearer token verification. Tokens are issued
// elsewhere; the API only verifies them.
type AuthConfig struct {
	Secret string
	Issuer string
}

// Claims carries the caller identity: sub is the user id.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

var errMissingIdentity = errors.New("token carries no usable identity")

// AuthMiddleware verifies the HS256 bearer token and stores the caller
// identity for the handlers.
func AuthMiddleware(cfg AuthConfig, logger *slog.Logger) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	secret := []byte(cfg.Secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenStr == "" {
			handler.RespondUnauthorized(c, "authorization header missing or invalid")
			return
		}

		id, err := parseIdentity(parser, secret, tokenStr)
		if err != nil {
			logger.Debug("Rejected bearer token", slog.String("error", err.Error()))
			handler.RespondUnauthorized(c, "invalid token")
			return
		}

		handler.SetIdentity(c, id)
		c.Next()
	}
}

func parseIdentity(parser *jwt.Parser, secret []byte, tokenStr string) (domain.Identity, error) {
	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return domain.Identity{}, err
	}

	if claims.Subject == "" || !claims.Role.Valid() {
		return domain.Identity{}, errMissingIdentity
	}
	return domain.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// NewToken signs a token for id. A zero ttl issues a token without expiry.
func NewToken(cfg AuthConfig, id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.ID,
			Issuer:   cfg.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
