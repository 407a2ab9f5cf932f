package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/session"
)

// Hydrator loads a fresh session's initial resources. It runs synchronously
// inside the middleware and receives the token context as an argument
// rather than reading it from the request context.
type Hydrator func(tc *TokenContext, s *session.Session) error

// AccessTokenMiddleware extracts the bearer token, decodes it, and binds
// the request to its session. The JWT is decoded WITHOUT signature
// verification: validation is the responsibility of the authorization
// server in front of this service. The middleware only needs the claims to
// scope state per token.
//
// Public endpoints (metadata, conformance resources, API docs) pass through
// without a token.
func AccessTokenMiddleware(store *session.Store, hydrate Hydrator, logger zerolog.Logger) echo.MiddlewareFunc {
	log := logger.With().Str("component", "access-token").Logger()
	parser := jwt.NewParser()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if PublicEndpoint(path) {
				return next(c)
			}

			authHeader := req.Header.Get("Authorization")
			if strings.TrimSpace(authHeader) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}
			token := strings.TrimSpace(parts[1])
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "empty bearer token")
			}

			claims := &jwt.RegisteredClaims{}
			if _, _, err := parser.ParseUnverified(token, claims); err != nil {
				log.Warn().Str("path", path).Err(err).Msg("failed to decode bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			var expiry time.Time
			if claims.ExpiresAt != nil {
				expiry = claims.ExpiresAt.Time
			}
			if !expiry.IsZero() && time.Now().After(expiry) {
				log.Warn().Str("subject", claims.Subject).Str("path", path).Msg("token expired")
				return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
			}

			tokenID := claims.ID
			if tokenID == "" {
				tokenID = TokenHash(token)
			}

			tc := &TokenContext{
				Token:   token,
				TokenID: tokenID,
				Subject: claims.Subject,
				Expiry:  expiry,
			}
			c.SetRequest(req.WithContext(WithContext(req.Context(), tc)))

			s := store.GetOrCreate(tc.SessionKey())
			s.SetExpiry(expiry)

			if hydrate != nil && !s.Hydrated() {
				if err := s.RunHydration(func() error {
					return hydrate(tc, s)
				}); err != nil {
					// Hydration failure leaves the session empty but usable;
					// a later request retries the load.
					log.Error().Str("session", tc.SessionKey()).Err(err).Msg("session hydration failed")
				}
			}

			return next(c)
		}
	}
}
