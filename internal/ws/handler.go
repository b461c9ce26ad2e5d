// HTTP glue: upgrades GET /ws/:id requests and hands the connection to the
// session handler.
package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Options bounds the transport behavior of upgraded connections.
type Options struct {
	// MaxFrameBytes caps the size of a single inbound frame; oversized
	// frames fault the connection. Values <= 0 leave gorilla's default.
	MaxFrameBytes int64
	// WriteTimeout bounds each outbound write (broadcast delivery and
	// error notices). Values <= 0 disable the deadline.
	WriteTimeout time.Duration
	// CheckOrigin overrides the upgrader's origin policy. Nil allows all
	// origins — the bearer credential, not the Origin header, is the
	// relay's authentication boundary.
	CheckOrigin func(r *http.Request) bool
}

// GinHandler returns the gin handler for the relay endpoint. The room ID is
// the ":id" path parameter; the bearer credential comes from the "token"
// query parameter or the Authorization header. All admission outcomes are
// decided by the session handler after the upgrade, so that close codes can
// be delivered over the WebSocket protocol itself.
func GinHandler(h *SessionHandler, opts Options) gin.HandlerFunc {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	return func(c *gin.Context) {
		roomID := c.Param("id")
		credential := bearerCredential(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote an HTTP error to the client.
			h.Log.Warn().Err(err).Str("chat_id", roomID).Msg("websocket upgrade failed")
			return
		}
		if opts.MaxFrameBytes > 0 {
			conn.SetReadLimit(opts.MaxFrameBytes)
		}

		h.Run(c.Request.Context(), roomID, credential, newSocket(conn, opts.WriteTimeout))
	}
}

// bearerCredential extracts the connection-time credential: the "token" query
// parameter, falling back to a standard Authorization bearer header.
func bearerCredential(c *gin.Context) string {
	if tok := strings.TrimSpace(c.Query("token")); tok != "" {
		return tok
	}
	authz := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
