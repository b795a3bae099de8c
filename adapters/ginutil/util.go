package ginutil

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Error helpers
func SendErr(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
func Unauthorized(c *gin.Context, code string) { SendErr(c, http.StatusUnauthorized, code) }
func ServerErr(c *gin.Context, code string)    { SendErr(c, http.StatusInternalServerError, code) }
func Unavailable(c *gin.Context, code string)  { SendErr(c, http.StatusServiceUnavailable, code) }

// ServerErrWithLog logs the underlying error/context before responding with a generic server error.
func ServerErrWithLog(c *gin.Context, l log.FieldLogger, code string, err error, message string) {
	if l == nil {
		l = log.StandardLogger()
	}
	entry := l.WithFields(log.Fields{
		"code":   code,
		"path":   c.FullPath(),
		"method": c.Request.Method,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if strings.TrimSpace(message) == "" {
		message = "openid server error"
	}
	entry.Error(message)
	ServerErr(c, code)
}

// RequestLogger logs one line per request at debug level, warn for 5xx.
func RequestLogger(l log.FieldLogger) gin.HandlerFunc {
	if l == nil {
		l = log.StandardLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := l.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
