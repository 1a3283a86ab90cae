package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the nrgin transaction with the caller and reports
// handler errors. It must run after nrgin.Middleware and AuthMiddleware.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if p, ok := PrincipalFrom(c); ok {
			txn.AddAttribute("user_id", p.ID)
		}
		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource_id", id)
		}

		c.Next()

		// Record error if present.
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
