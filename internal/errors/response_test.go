package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(handler gin.HandlerFunc, next gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-42")
		c.Next()
	})
	router.GET("/x", handler, next)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestRespondWithError_AbortsAndEchoesRequestID(t *testing.T) {
	reached := false
	w := respond(
		func(c *gin.Context) { Conflict(c, CartVersionConflict, "") },
		func(c *gin.Context) { reached = true },
	)

	assert.False(t, reached)
	assert.Equal(t, http.StatusConflict, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CartVersionConflict, body.Error)
	assert.Equal(t, DefaultMessage(http.StatusConflict), body.Message)
	assert.Equal(t, "req-42", body.RequestID)
}

func TestRespondWithError_KeepsWrittenResponse(t *testing.T) {
	w := respond(
		func(c *gin.Context) {
			c.String(http.StatusOK, "done")
			InternalError(c, "")
		},
		func(c *gin.Context) {},
	)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "done", w.Body.String())
}

func TestRespondWithValidationError(t *testing.T) {
	w := respond(
		func(c *gin.Context) { RespondWithValidationError(c, map[string]string{"productId": "required"}) },
		func(c *gin.Context) {},
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{
		"error": "VALIDATION_INVALID_INPUT",
		"message": "The input is not valid",
		"request_id": "req-42",
		"fields": {"productId": "required"}
	}`, w.Body.String())
}

func TestDefaultMessage(t *testing.T) {
	assert.Equal(t, "Sign in required", DefaultMessage(http.StatusUnauthorized))
	assert.Equal(t, http.StatusText(http.StatusTeapot), DefaultMessage(http.StatusTeapot))
}
