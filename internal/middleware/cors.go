package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origins is a browser origin allow-list. An empty list or "*" allows every origin.
type Origins map[string]bool

// ParseOrigins parses "*" or a comma-separated list of origins. Trailing slashes are ignored.
func ParseOrigins(s string) Origins {
	m := make(Origins)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			m[o] = true
		}
	}
	return m
}

func (o Origins) any() bool {
	return len(o) == 0 || o["*"]
}

// Allows reports whether a request carrying origin may proceed. Requests without an Origin
// header are not from a browser page and are allowed.
func (o Origins) Allows(origin string) bool {
	return origin == "" || o.any() || o[strings.TrimSuffix(origin, "/")]
}

// CheckOrigin adapts the allow-list to websocket.Upgrader.CheckOrigin. Browsers do not apply
// CORS to WebSocket handshakes, so the socket endpoint checks the origin itself.
func (o Origins) CheckOrigin(r *http.Request) bool {
	return o.Allows(r.Header.Get("Origin"))
}

// CORS returns a middleware that sets CORS headers for cross-origin requests.
// allowedOrigins is "*" or a comma-separated list of origins.
func CORS(allowedOrigins string) gin.HandlerFunc {
	return ParseOrigins(allowedOrigins).Middleware()
}

// Middleware sets CORS headers for allowed origins and answers preflight requests.
func (o Origins) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case o.any():
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && o.Allows(origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		default:
			origin = ""
		}
		if o.any() || origin != "" {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
