package middleware

import (
	"errors"
	"net/http"

	"storefront-rewards/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders errors attached to the gin context as JSON. Handlers
// attach errutil.BaseError values; anything else becomes a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var base errutil.BaseError
		if errors.As(err, &base) {
			c.AbortWithStatusJSON(base.Status().HTTPStatus(), base.JSON())
			return
		}

		zap.L().Error("unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    errutil.StatusInternal,
			"message": "internal server error",
		})
	}
}
