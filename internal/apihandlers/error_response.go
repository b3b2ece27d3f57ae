package apihandlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bottle/internal/models"
	"bottle/internal/store"
)

// APIError is the body of every non-2xx response, e.g.
// { "error": { "code": "not_found", "message": "gallery 12: not found" } }
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

func JSONError(ctx *gin.Context, status int, code, msg string) {
	ctx.JSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

func BadRequest(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, "bad_request", msg)
}

func NotFound(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusNotFound, "not_found", msg)
}

func Internal(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusInternalServerError, "internal_error", msg)
}

func Conflict(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusConflict, "conflict", msg)
}

// FromError picks the response for a service error.
func FromError(ctx *gin.Context, err error) {
	switch {
	case store.IsNotFound(err):
		NotFound(ctx, err.Error())
	case errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrConflict):
		Conflict(ctx, err.Error())
	case errors.Is(err, models.ErrInvalidInput):
		BadRequest(ctx, err.Error())
	default:
		Internal(ctx, err.Error())
	}
}
