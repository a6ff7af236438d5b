package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "docnum/internal/core/context"
)

// OfficeParam is the route parameter naming the issuing office.
const OfficeParam = "office"

// Office copies the :office route parameter into the request context so
// logs and spans carry it. Unknown offices are rejected by the handlers.
func Office() gin.HandlerFunc {
	return func(c *gin.Context) {
		if office := c.Param(OfficeParam); office != "" {
			c.Request = c.Request.WithContext(appctx.WithOffice(c.Request.Context(), office))
		}
		c.Next()
	}
}
