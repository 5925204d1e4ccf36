package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/pkg/auth"
	apperrors "github.com/jwalitptl/hospital-admin/pkg/errors"
	"github.com/jwalitptl/hospital-admin/pkg/httputil"
)

const ContextOperator = "operator"

type AuthMiddleware struct {
	jwtSvc auth.JWTService
}

func NewAuthMiddleware(jwtSvc auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtSvc: jwtSvc}
}

// Authenticate verifies the operator's access token and stores the operator in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil), nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil), nil)
			return
		}

		claims, err := m.jwtSvc.Validate(parts[1], auth.PurposeAccess)
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err), nil)
			return
		}

		c.Set(ContextOperator, &model.Operator{
			ID:    claims.Subject,
			Email: claims.Email,
			Role:  claims.Role,
		})
		c.Next()
	}
}

// RequireRole lets the request through only for operators holding one of roles
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		operator, ok := OperatorFrom(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil), nil)
			return
		}
		for _, role := range roles {
			if operator.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, apperrors.Forbidden("permission denied"), nil)
	}
}

func OperatorFrom(c *gin.Context) (*model.Operator, bool) {
	v, ok := c.Get(ContextOperator)
	if !ok {
		return nil, false
	}
	operator, ok := v.(*model.Operator)
	return operator, ok
}
