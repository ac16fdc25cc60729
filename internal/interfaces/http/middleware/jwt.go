package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/docflow/internal/infrastructure/auth"
	"github.com/erp/docflow/internal/infrastructure/logger"
	"github.com/erp/docflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Actor context keys and headers
const (
	JWTClaimsKey  = "jwt_claims"
	ActorKey      = "actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "

	// Development headers, honored only when JWT auth is disabled
	ActorIDHeader    = "X-Actor-ID"
	ActorRolesHeader = "X-Actor-Roles"
	TenantIDHeader   = "X-Tenant-ID"
)

// Actor is the caller a request acts for
type Actor struct {
	ID       string
	TenantID string
	Roles    []string
}

// HasRole reports whether the actor holds role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ActorMiddlewareConfig holds configuration for the actor middleware
type ActorMiddlewareConfig struct {
	// JWTService validates bearer tokens. When nil, identity is read from
	// the X-Actor-* headers instead.
	JWTService *auth.JWTService
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that don't require authentication
	SkipPathPrefixes []string
	Logger           *zap.Logger
}

// DefaultActorConfig returns the default actor middleware configuration
func DefaultActorConfig(jwtService *auth.JWTService) ActorMiddlewareConfig {
	return ActorMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/api/v1/health",
		},
	}
}

// errMissingCredentials marks a request without a usable bearer token
var errMissingCredentials = errors.New("missing bearer credentials")

// ActorMiddleware resolves the acting user of each request
func ActorMiddleware(cfg ActorMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTService == nil {
			setActor(c, headerActor(c))
			c.Next()
			return
		}

		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			handleAuthError(c, cfg, errMissingCredentials, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			handleAuthError(c, cfg, errMissingCredentials, "Invalid authorization header format")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		if tokenString == "" {
			handleAuthError(c, cfg, errMissingCredentials, "Missing token")
			return
		}

		claims, err := cfg.JWTService.ValidateToken(tokenString)
		if err != nil {
			handleAuthError(c, cfg, err, "Token validation failed")
			return
		}

		c.Set(JWTClaimsKey, claims)
		setActor(c, Actor{ID: claims.UserID, TenantID: claims.TenantID, Roles: claims.Roles})

		if cfg.Logger != nil {
			cfg.Logger.Debug("JWT authentication successful",
				zap.String("user_id", claims.UserID),
				zap.String("tenant_id", claims.TenantID),
				zap.Strings("roles", claims.Roles),
			)
		}
		c.Next()
	}
}

func headerActor(c *gin.Context) Actor {
	a := Actor{
		ID:       strings.TrimSpace(c.GetHeader(ActorIDHeader)),
		TenantID: strings.TrimSpace(c.GetHeader(TenantIDHeader)),
	}
	for _, r := range strings.Split(c.GetHeader(ActorRolesHeader), ",") {
		if r = strings.TrimSpace(r); r != "" {
			a.Roles = append(a.Roles, r)
		}
	}
	return a
}

func setActor(c *gin.Context, a Actor) {
	c.Set(ActorKey, a)
	if a.ID != "" {
		c.Request = c.Request.WithContext(logger.WithActorID(c.Request.Context(), a.ID))
	}
}

// handleAuthError aborts the request with 401
func handleAuthError(c *gin.Context, cfg ActorMiddlewareConfig, err error, message string) {
	if cfg.Logger != nil {
		cfg.Logger.Warn("JWT authentication failed",
			zap.Error(err),
			zap.String("message", message),
			zap.String("path", c.Request.URL.Path),
		)
	}

	errorCode := dto.ErrCodeUnauthorized
	errorMessage := "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		errorCode = dto.ErrCodeTokenExpired
		errorMessage = "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		errorCode = dto.ErrCodeTokenInvalid
		errorMessage = "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidClaims), errors.Is(err, auth.ErrMissingUserID):
		errorCode = dto.ErrCodeTokenInvalid
		errorMessage = "Invalid token"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(errorCode, errorMessage, c.GetString(RequestIDKey)))
}

// GetActor returns the actor resolved for the request
func GetActor(c *gin.Context) Actor {
	if v, ok := c.Get(ActorKey); ok {
		if a, ok := v.(Actor); ok {
			return a
		}
	}
	return Actor{}
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// RequireRole aborts with 403 unless the actor holds role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)
		if actor.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, "Authentication required", c.GetString(RequestIDKey)))
			return
		}
		if !actor.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden, "Role "+role+" is required", c.GetString(RequestIDKey)))
			return
		}
		c.Next()
	}
}
