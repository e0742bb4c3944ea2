package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brickfolio/control-plane/shared/errs"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// CodedErrorResponse maps a coded control-plane error onto HTTP. Cross-tenant
// and unresolvable lookups both land on a generic 404, never 403, so the
// response does not confirm the existence of another tenant's record.
func CodedErrorResponse(c *gin.Context, err error) {
	switch errs.ErrorCode(err) {
	case errs.ENotFound:
		NotFoundResponse(c, "Not found")
	case errs.EConflict:
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errs.EInvalid:
		BadRequestResponse(c, err.Error())
	case errs.ETransient:
		c.Header("Retry-After", "1")
		ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		InternalServerErrorResponse(c, "Internal error")
	}
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message)
}

// UnauthorizedResponse sends a 401 Unauthorized response
func UnauthorizedResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message)
}

// NotFoundResponse sends a 404 Not Found response
func NotFoundResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message)
}

// InternalServerErrorResponse sends a 500 Internal Server Error response
func InternalServerErrorResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, message)
}

// CreatedResponse sends a 201 Created response
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	SuccessResponse(c, http.StatusCreated, message, data)
}

// OKResponse sends a 200 OK response
func OKResponse(c *gin.Context, message string, data interface{}) {
	SuccessResponse(c, http.StatusOK, message, data)
}
