package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/hospital-admin/pkg/errors"
	"github.com/jwalitptl/hospital-admin/pkg/validator"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all API responses. Notifications are the toasts the operator
// UI should render for the call; Fallback carries credentials for manual
// hand-off when an invitation failed.
type Response struct {
	Status        string                 `json:"status"`
	Message       string                 `json:"message,omitempty"`
	Data          interface{}            `json:"data,omitempty"`
	Notifications interface{}            `json:"notifications,omitempty"`
	Fallback      interface{}            `json:"fallback,omitempty"`
	Errors        []validator.FieldError `json:"errors,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: StatusSuccess,
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  StatusError,
		Message: message,
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, resp *Response) {
	if resp == nil {
		resp = NewSuccessResponse(nil)
	}
	resp.Status = StatusSuccess
	c.JSON(status, resp)
}

// RespondWithError maps err onto a status code and sends an error response.
// resp may carry data collected while the call ran (notifications, fallback).
func RespondWithError(c *gin.Context, err error, resp *Response) {
	if resp == nil {
		resp = &Response{}
	}
	resp.Status = StatusError

	statusCode := http.StatusInternalServerError
	message := "internal server error"

	var verrs validator.Errors
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &verrs):
		statusCode = http.StatusBadRequest
		message = "validation failed"
		resp.Errors = verrs
	case errors.As(err, &appErr):
		statusCode = appErr.StatusCode()
		message = appErr.Error()
		if statusCode == http.StatusInternalServerError {
			message = appErr.Message
		}
	}

	resp.Message = message
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusCode, resp)
}
