package realtime

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades requests to push channel connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler builds the upgrade endpoint. allowedOrigins follows the CORS setting; "*" allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if allowAll || origin == "" {
					return true
				}
				if _, ok := allowed[strings.ToLower(origin)]; ok {
					return true
				}
				// same host is always fine
				u, err := url.Parse(origin)
				return err == nil && strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Serve handles GET /ws. Every client starts in a room named by its own id,
// announced in the first "connected" frame, so that id works as a session_id
// without a join. An optional session_id query parameter joins that room too.
func (h *Handler) Serve(ctx *gin.Context) {
	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// the upgrader already wrote an HTTP error
		h.hub.log.Debugw("push upgrade failed", "error", err)
		return
	}

	client := newClient(h.hub, conn)
	h.hub.register(client)
	h.hub.Join(client, client.ID)
	if frame, err := encode(EventConnected, map[string]string{"id": client.ID}); err == nil {
		h.hub.deliver(client, frame)
	}
	if room := strings.TrimSpace(ctx.Query("session_id")); room != "" {
		client.join(room)
	}

	go client.writePump()
	client.readPump()
}
