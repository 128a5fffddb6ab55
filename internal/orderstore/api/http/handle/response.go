package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"orderboard/internal/lifecycle"
	"orderboard/internal/orderstore/api/http/middleware"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/models"
)

// Error codes carried in every error body next to the message.
const (
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeStatusConflict    = "status_conflict"
	CodeInvalidRequest    = "invalid_request"
	CodeInternal          = "internal"
)

type ErrorResponse struct {
	Error         string        `json:"error"`
	Code          string        `json:"code"`
	CurrentStatus models.Status `json:"current_status,omitempty"`
	RequestID     string        `json:"request_id,omitempty"`
}

type DataResponse struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

type Meta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

func jsonData(c *gin.Context, status int, data any, meta *Meta) {
	c.JSON(status, DataResponse{Data: data, Meta: meta})
}

func jsonError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}

// writeError maps a service error onto the store's HTTP contract.
func writeError(c *gin.Context, err error) {
	var ite *lifecycle.InvalidTransitionError
	switch {
	case errors.As(err, &ite):
		status := http.StatusConflict
		if ite.From == "" {
			status = http.StatusUnprocessableEntity
		}
		c.AbortWithStatusJSON(status, ErrorResponse{
			Error:         ite.Error(),
			Code:          CodeInvalidTransition,
			CurrentStatus: ite.From,
			RequestID:     middleware.GetRequestID(c),
		})
	case errors.Is(err, apperr.ErrStatusConflict):
		jsonError(c, http.StatusConflict, CodeStatusConflict, err)
	case errors.Is(err, apperr.ErrNotFound):
		jsonError(c, http.StatusNotFound, CodeNotFound, err)
	case errors.Is(err, apperr.ErrUnauthorized):
		jsonError(c, http.StatusUnauthorized, CodeUnauthorized, err)
	case errors.Is(err, apperr.ErrForbidden):
		jsonError(c, http.StatusForbidden, CodeForbidden, err)
	case errors.Is(err, apperr.ErrInvalidOrder), errors.Is(err, apperr.ErrFieldIsEmpty), errors.Is(err, models.ErrInvalidStatus):
		jsonError(c, http.StatusBadRequest, CodeInvalidRequest, err)
	default:
		_ = c.Error(err)
		jsonError(c, http.StatusInternalServerError, CodeInternal, errors.New("internal error"))
	}
}
