package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/service/identity"
	apperrors "github.com/jwalitptl/hospital-admin/pkg/errors"
	"github.com/jwalitptl/hospital-admin/pkg/httputil"
)

// Verifier confirms an email address from a verification link.
type Verifier interface {
	VerifyEmail(ctx context.Context, token string) (*model.Account, error)
}

type Handler struct {
	svc Verifier
}

func NewHandler(svc Verifier) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.GET("/verify", h.VerifyEmail)
	}
}

func (h *Handler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		httputil.RespondWithError(c, apperrors.BadRequest("verification token is required", nil), nil)
		return
	}

	account, err := h.svc.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidLink):
			err = apperrors.BadRequest("verification link is invalid or expired", err)
		default:
			err = apperrors.Internal(err)
		}
		httputil.RespondWithError(c, err, nil)
		return
	}

	resp := httputil.NewSuccessResponse(account)
	resp.Message = "email verified successfully"
	httputil.RespondWithSuccess(c, http.StatusOK, resp)
}
