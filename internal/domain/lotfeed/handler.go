package lotfeed

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler accepts browser connections only from the given origins. An
// empty list or "*" allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := map[string]bool{}
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 || allowed["*"] {
					return true
				}
				return allowed[strings.TrimRight(origin, "/")]
			},
		},
	}
}

// HandleWebSocket GET /ws/lots?stage=1,2
func (h *Handler) HandleWebSocket(c *gin.Context) {
	var stages []int
	if raw := c.Query("stage"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || s < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage"})
				return
			}
			stages = append(stages, s)
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.WithError(err).Warn("lotfeed: upgrade failed")
		return
	}
	h.hub.ServeWS(conn, stages)
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws/lots", h.HandleWebSocket)
}
