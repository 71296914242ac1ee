package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
	"github.com/ManuelReschke/EduPortal/internal/pkg/usercontext"
)

// JWTConfig verifies access tokens issued by the identity provider.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// JWTConfigFromEnv reads AUTH_JWT_SECRET, AUTH_JWT_ISSUER and AUTH_JWT_AUDIENCE.
func JWTConfigFromEnv() JWTConfig {
	return JWTConfig{
		Secret:   []byte(env.GetEnv("AUTH_JWT_SECRET", "")),
		Issuer:   env.GetEnv("AUTH_JWT_ISSUER", ""),
		Audience: env.GetEnv("AUTH_JWT_AUDIENCE", ""),
		Leeway:   env.GetEnvDuration("AUTH_JWT_LEEWAY", 30*time.Second),
	}
}

// Claims is the subset of the identity provider's token we read.
type Claims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

var errMissingSubject = errors.New("token has no subject")

// ParseToken validates raw and returns the caller it identifies.
func ParseToken(cfg JWTConfig, raw string) (usercontext.UserContext, error) {
	if len(cfg.Secret) == 0 {
		return usercontext.Anonymous, errors.New("AUTH_JWT_SECRET is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return usercontext.Anonymous, err
	}
	if !token.Valid {
		return usercontext.Anonymous, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return usercontext.Anonymous, errMissingSubject
	}

	uc := usercontext.UserContext{
		UserID:     claims.Subject,
		Email:      claims.Email,
		IsLoggedIn: true,
	}
	if name, ok := claims.UserMetadata["full_name"].(string); ok {
		uc.FullName = name
	}
	if role, ok := claims.AppMetadata["role"].(string); ok && role == "admin" {
		uc.IsAdmin = true
	}
	return uc, nil
}

func bearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// UserContextMiddleware sets the user context for every request. A missing
// or invalid token leaves the request anonymous; RequireAPIAuth rejects it.
func UserContextMiddleware(cfg JWTConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			usercontext.SetUserContext(c, usercontext.Anonymous)
			return c.Next()
		}
		uc, err := ParseToken(cfg, raw)
		if err != nil {
			log.Debugf("[Auth] rejected token: %v", err)
			uc = usercontext.Anonymous
		}
		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}

// RequireAPIAuth ensures an authenticated caller and answers 401 JSON otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "unauthorized",
			"message": "Vui lòng đăng nhập",
		})
	}
	return c.Next()
}
