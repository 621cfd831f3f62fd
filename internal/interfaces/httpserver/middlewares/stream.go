package middlewares

import (
	"github.com/gin-gonic/gin"
)

// StreamHeader marks responses that carry the agent stream protocol.
const StreamHeader = "X-Agent-Stream"

// PrepareStream configures the response for the line based agent stream.
func PrepareStream(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(StreamHeader, "v1")
}
