package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/drivermed-api/pkg/auth"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/httputil"
)

const (
	ContextProfileID = "profile_id"
	ContextEmail     = "profile_email"
	ContextRole      = "profile_role"
)

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and stores the profile claims in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authenticate(c) {
			return
		}
		c.Next()
	}
}

// RequireRole authenticates the request and then checks the role claim.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authenticate(c) {
			return
		}

		role := c.GetString(ContextRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, apperrors.Forbidden(errors.New("insufficient role")))
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context) bool {
	header := c.GetHeader("Authorization")
	if header == "" {
		httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("missing authorization header")))
		return false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("invalid authorization format")))
		return false
	}

	claims, err := m.jwt.ValidateToken(parts[1])
	if err != nil {
		httputil.RespondWithError(c, apperrors.Unauthorized(err))
		return false
	}

	c.Set(ContextProfileID, claims.ProfileID.String())
	c.Set(ContextEmail, claims.Email)
	c.Set(ContextRole, claims.Role)
	return true
}
