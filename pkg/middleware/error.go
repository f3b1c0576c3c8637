package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
)

// Error renders the last gin error as the errutil JSON envelope. Unknown
// errors surface as a generic internal failure so storage details never
// reach the client.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		ginErr := c.Errors.Last()
		if ginErr == nil {
			return
		}

		var be errutil.BaseError
		if errors.As(ginErr.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal error",
		}.JSON())
	}
}
