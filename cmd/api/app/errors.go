package app

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// errKey is the gin context key carrying the recorded error between
// AbortError and the Errors middleware.
const errKey = "assetflow.error"

// Error is the structured error body rendered by the Errors middleware.
type Error struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// errorBody is the error response envelope. Success responses are
// shaped per handler, so only the error arm lives here.
type errorBody struct {
	Error *Error `json:"error"`
}

// AbortError records an error and aborts the handler. The response will be
// rendered by the Errors middleware.
func AbortError(c *gin.Context, status int, code, message string, fields map[string]string) {
	c.Set(errKey, &Error{Code: code, Message: message, FieldErrors: fields})
	c.AbortWithStatus(status)
}

// Errors emits a JSON error envelope and structured log entry when an error
// was recorded via AbortError.
func Errors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		v, ok := c.Get(errKey)
		if !ok {
			return
		}
		err, ok := v.(*Error)
		if !ok {
			return
		}
		status := c.Writer.Status()
		logger := log.Ctx(c.Request.Context()).Error().Str("code", err.Code)
		for k, v := range err.FieldErrors {
			logger = logger.Str("field_"+k, v)
		}
		logger.Msg(err.Message)
		c.JSON(status, errorBody{Error: err})
	}
}
