package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/common"
)

func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str(RequestIDKey, RequestIDFrom(c)).
					Str("path", c.Request.URL.Path).
					Msg("recovered from panic")
				if c.Writer.Written() {
					c.Abort()
					return
				}
				common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
