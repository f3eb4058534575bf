package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failure response. RequestID echoes the
// X-Request-ID of the failed request so a report can be matched to its log line.
type ErrorResponse struct {
	Error     string `json:"error"`   // code from codes.go
	Message   string `json:"message"` // human readable
	RequestID string `json:"request_id,omitempty"`
}

// ValidationError carries per-field messages.
type ValidationError struct {
	ErrorResponse
	Fields map[string]string `json:"fields,omitempty"`
}

var defaultMessages = map[int]string{
	http.StatusBadRequest:          "The request is not valid",
	http.StatusUnauthorized:        "Sign in required",
	http.StatusForbidden:           "You do not have access to this action",
	http.StatusNotFound:            "Not found",
	http.StatusConflict:            "The resource changed, refetch and retry",
	http.StatusInternalServerError: "An internal error occurred, please retry shortly",
	http.StatusServiceUnavailable:  "The service is temporarily unavailable",
}

// DefaultMessage is the copy used when a caller passes an empty message.
func DefaultMessage(status int) string {
	if msg, ok := defaultMessages[status]; ok {
		return msg
	}
	return http.StatusText(status)
}

func newResponse(c *gin.Context, status int, code, message string) ErrorResponse {
	if message == "" {
		message = DefaultMessage(status)
	}
	return ErrorResponse{Error: code, Message: message, RequestID: c.GetString("request_id")}
}

// RespondWithError writes the failure body and aborts the rest of the chain.
// A handler that already wrote its response keeps it.
func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(statusCode, newResponse(c, statusCode, errorCode, message))
}

func Unauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, AuthUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	RespondWithError(c, http.StatusForbidden, AuthzForbidden, message)
}

func BadRequest(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message)
}

func NotFound(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusNotFound, errorCode, message)
}

func Conflict(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusConflict, errorCode, message)
}

func InternalError(c *gin.Context, message string) {
	RespondWithError(c, http.StatusInternalServerError, InternalServerError, message)
}

func RespondWithValidationError(c *gin.Context, fields map[string]string) {
	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ValidationError{
		ErrorResponse: newResponse(c, http.StatusBadRequest, ValidationInvalidInput, "The input is not valid"),
		Fields:        fields,
	})
}
