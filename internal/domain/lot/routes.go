package lot

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	lots := r.Group("/lots")
	{
		lots.GET("", h.ListLots)           // GET /api/v1/lots?stage=&status=
		lots.GET("/summary", h.GetSummary) // GET /api/v1/lots/summary
		lots.GET("/:id", h.GetLot)         // GET /api/v1/lots/:id
	}
}

// RegisterAdminRoutes exposes the same counters under the admin group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/lots/summary", h.GetSummary)
}
