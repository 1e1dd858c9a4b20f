package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	CompanyID string   `json:"company_id"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey switches validation to HS256; meant for development and tests.
	SigningKey []byte
}

func (c Claims) Actor() Actor {
	return Actor{ID: c.Subject, Email: c.Email, Name: c.Name, CompanyID: c.CompanyID}
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	var keyFunc jwt.Keyfunc
	if len(cfg.SigningKey) > 0 {
		keyFunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		url := cfg.JWKSURL
		if url == "" && cfg.Issuer != "" {
			url = JWKSURLFor(cfg.Issuer)
		}
		keyFunc = NewJWKSCache(url, defaultJWKSCacheTTL).keyFunc
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			// read by the company middleware
			c.Set("jwt_company_id", claims.CompanyID)

			setIdentity(c, claims.Actor(), claims.Roles)
			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as an admin
// dev-user. Requests that do carry a token are validated by strict.
func DevAuthMiddleware(strict echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return validated(c)
			}
			c.Set("jwt_company_id", "")
			setIdentity(c, Actor{ID: "dev-user", Email: "dev@localhost", Name: "Dev User"}, []string{"admin"})
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, actor Actor, roles []string) {
	ctx := c.Request().Context()
	ctx = WithActor(ctx, actor)
	ctx = WithRoles(ctx, roles)
	ctx = WithUserAgent(ctx, c.Request().UserAgent())
	c.SetRequest(c.Request().WithContext(ctx))
}
