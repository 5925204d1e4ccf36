package doctor

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/service/notification"
	"github.com/jwalitptl/hospital-admin/internal/service/onboarding"
	apperrors "github.com/jwalitptl/hospital-admin/pkg/errors"
	"github.com/jwalitptl/hospital-admin/pkg/httputil"
	"github.com/jwalitptl/hospital-admin/pkg/validator"
)

type Handler struct {
	svc onboarding.Service
}

func NewHandler(svc onboarding.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the doctor routes. admin guards the manual
// verification override.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, admin gin.HandlerFunc) {
	doctors := r.Group("/doctors")
	{
		doctors.GET("/pending", h.ListPending)
		doctors.POST("/pending", h.CreatePending)
		doctors.POST("/pending/:id/invite", h.Invite)
		doctors.GET("/registered", h.ListRegistered)
		doctors.POST("/registered/:id/resend-verification", h.ResendVerification)
		doctors.POST("/registered/:id/verify", admin, h.ManuallyVerify)

		for _, source := range []model.Source{model.SourceLocal, model.SourceRemote} {
			path := "/" + string(source) + "/:id"
			doctors.GET(path, h.Edit(source))
			doctors.PUT(path, h.Save(source))
			doctors.DELETE(path, h.Delete(source))
		}
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

// requestContext attaches a notification collector to the request context.
func requestContext(c *gin.Context) (context.Context, *notification.Collector) {
	collector := notification.NewCollector()
	return notification.WithCollector(c.Request.Context(), collector), collector
}

func respond(c *gin.Context, status int, collector *notification.Collector, message string, data interface{}) {
	resp := httputil.NewSuccessResponse(data)
	resp.Message = message
	attach(resp, collector)
	httputil.RespondWithSuccess(c, status, resp)
}

func fail(c *gin.Context, collector *notification.Collector, err error, data interface{}) {
	resp := &httputil.Response{Data: data}
	attach(resp, collector)
	httputil.RespondWithError(c, toAppError(err), resp)
}

func attach(resp *httputil.Response, collector *notification.Collector) {
	if n := collector.Notifications(); len(n) > 0 {
		resp.Notifications = n
	}
	if f := collector.Fallback(); len(f) > 0 {
		resp.Fallback = f
	}
}

func (h *Handler) ListPending(c *gin.Context) {
	doctors, err := h.svc.ListPendingDoctors(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err), nil)
		return
	}
	if doctors == nil {
		doctors = []*model.PendingDoctor{}
	}
	httputil.RespondWithSuccess(c, http.StatusOK, httputil.NewSuccessResponse(doctors))
}

func (h *Handler) ListRegistered(c *gin.Context) {
	doctors, err := h.svc.ListRegisteredDoctors(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err), nil)
		return
	}
	if doctors == nil {
		doctors = []*model.RegisteredDoctor{}
	}
	httputil.RespondWithSuccess(c, http.StatusOK, httputil.NewSuccessResponse(doctors))
}

func (h *Handler) CreatePending(c *gin.Context) {
	var form model.DoctorForm
	if err := c.ShouldBindJSON(&form); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err), nil)
		return
	}

	ctx, collector := requestContext(c)
	doctor, err := h.svc.CreatePendingDoctor(ctx, form)
	if err != nil {
		fail(c, collector, err, nil)
		return
	}
	respond(c, http.StatusCreated, collector, "doctor staged", doctor)
}

type invitationFailure struct {
	DoctorID string `json:"doctor_id"`
	Stage    string `json:"stage"`
	Status   string `json:"status"`
}

func (h *Handler) Invite(c *gin.Context) {
	ctx, collector := requestContext(c)
	result, err := h.svc.InviteDoctor(ctx, c.Param("id"))
	if err != nil {
		var invErr *onboarding.InvitationError
		var data interface{}
		if errors.As(err, &invErr) {
			data = invitationFailure{
				DoctorID: invErr.DoctorID,
				Stage:    string(invErr.Stage),
				Status:   invErr.Status.String(),
			}
		}
		fail(c, collector, err, data)
		return
	}
	respond(c, http.StatusOK, collector, "doctor invited", result)
}

func (h *Handler) Edit(source model.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := h.svc.EditDoctor(c.Request.Context(), c.Param("id"), source)
		if err != nil {
			httputil.RespondWithError(c, toAppError(err), nil)
			return
		}
		httputil.RespondWithSuccess(c, http.StatusOK, httputil.NewSuccessResponse(form))
	}
}

func (h *Handler) Save(source model.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form model.DoctorForm
		if err := c.ShouldBindJSON(&form); err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err), nil)
			return
		}

		id := c.Param("id")
		ctx, collector := requestContext(c)
		if err := h.svc.SaveEditedDoctor(ctx, id, source, form); err != nil {
			fail(c, collector, err, nil)
			return
		}

		var data interface{}
		if saved, err := h.svc.EditDoctor(ctx, id, source); err == nil {
			data = saved
		}
		respond(c, http.StatusOK, collector, "doctor updated", data)
	}
}

func (h *Handler) Delete(source model.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		confirmed, _ := strconv.ParseBool(c.Query("confirm"))

		ctx, collector := requestContext(c)
		if err := h.svc.DeleteDoctor(ctx, c.Param("id"), source, confirmed); err != nil {
			fail(c, collector, err, nil)
			return
		}
		respond(c, http.StatusOK, collector, "doctor deleted", nil)
	}
}

func (h *Handler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err), nil)
			return
		}
	}

	ctx, collector := requestContext(c)
	if err := h.svc.ResendVerificationEmail(ctx, c.Param("id"), req.Email); err != nil {
		fail(c, collector, err, nil)
		return
	}
	respond(c, http.StatusOK, collector, "verification email sent", nil)
}

func (h *Handler) ManuallyVerify(c *gin.Context) {
	var req emailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err), nil)
			return
		}
	}

	ctx, collector := requestContext(c)
	if err := h.svc.ManuallyVerifyDoctor(ctx, c.Param("id"), req.Email); err != nil {
		fail(c, collector, err, nil)
		return
	}
	respond(c, http.StatusOK, collector, "doctor verified", nil)
}

// toAppError maps workflow errors onto HTTP-aware application errors.
func toAppError(err error) error {
	var verrs validator.Errors
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &verrs), errors.As(err, &appErr):
		return err
	case errors.Is(err, onboarding.ErrUnknownInvitation):
		return apperrors.Internal(err)
	case errors.Is(err, onboarding.ErrNotFound):
		return apperrors.NotFound("doctor", err)
	case errors.Is(err, onboarding.ErrOffline):
		return apperrors.Unavailable("remote services are unreachable", err)
	case errors.Is(err, onboarding.ErrAccountCreation):
		return apperrors.BadGateway("account creation failed", err)
	case errors.Is(err, onboarding.ErrProfileCreation):
		return apperrors.BadGateway("profile creation failed", err)
	case errors.Is(err, onboarding.ErrDoctorRecordCreation):
		return apperrors.BadGateway("doctor record creation failed", err)
	case errors.Is(err, onboarding.ErrRemoteCall):
		return apperrors.BadGateway("remote call failed", err)
	case errors.Is(err, onboarding.ErrDuplicateEmail):
		return apperrors.Conflict("email already used by another doctor", err)
	case errors.Is(err, onboarding.ErrConfirmationRequired):
		return apperrors.Conflict("deletion must be confirmed with confirm=true", err)
	case errors.Is(err, onboarding.ErrUnsupportedSource):
		return apperrors.NotImplemented("not supported for registered doctors", err)
	case errors.Is(err, onboarding.ErrInvalidSource):
		return apperrors.BadRequest("invalid source", err)
	default:
		return apperrors.Internal(err)
	}
}
