package server

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

func nextRequestID() string {
	return uuid.NewString()
}

// tracing propagates an incoming X-Request-Id or mints a new one.
func tracing(nextRequestID func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = nextRequestID()
		}
		c.Set("requestID", requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// reportErrors logs errors handlers attached to the context. When nothing
// reached the client yet the request fails with a 500.
func reportErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		requestID := c.GetString("requestID")
		for _, err := range c.Errors {
			log.Printf("server: %s %s [%s]: %v", c.Request.Method, c.Request.URL.Path, requestID, err.Err)
		}
		if !c.Writer.Written() {
			c.String(http.StatusInternalServerError, "500 internal server error")
		}
	}
}
