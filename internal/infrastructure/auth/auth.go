// Package auth provides optional JWT validation backed by a JWKS endpoint.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/config"
	"hypermaps/server/internal/infrastructure/logger"
)

// SubjectKey is the gin context key holding the authenticated subject.
const SubjectKey = "auth_subject"

// Validator checks bearer tokens against a JWKS. When auth is disabled the
// middleware passes every request through.
type Validator struct {
	enabled  bool
	issuer   string
	audience string
	jwks     *keyfunc.JWKS
	logger   zerolog.Logger
}

func NewValidator(cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	componentLogger := logger.Component(log, "auth")
	if !cfg.AuthEnabled {
		componentLogger.Info().Msg("auth disabled, requests pass through unauthenticated")
		return &Validator{enabled: false, logger: componentLogger}, nil
	}

	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load jwks from %s: %w", cfg.AuthJWKSURL, err)
	}
	return &Validator{
		enabled:  true,
		issuer:   cfg.AuthIssuer,
		audience: cfg.AuthAudience,
		jwks:     jwks,
		logger:   componentLogger,
	}, nil
}

// Middleware validates the Authorization header and stores the token subject
// on the context.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.enabled {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		options := []jwt.ParserOption{jwt.WithIssuer(v.issuer)}
		if v.audience != "" {
			options = append(options, jwt.WithAudience(v.audience))
		}
		token, err := jwt.Parse(raw, v.jwks.Keyfunc, options...)
		if err != nil || !token.Valid {
			v.logger.Debug().Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if subject, err := token.Claims.GetSubject(); err == nil {
			c.Set(SubjectKey, subject)
		}
		c.Next()
	}
}
