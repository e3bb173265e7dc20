package reservation

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the public checkout routes. limit runs in front of
// reservation creation only.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, limit ...gin.HandlerFunc) {
	create := make([]gin.HandlerFunc, 0, len(limit)+1)
	create = append(create, limit...)
	create = append(create, h.CreateReservation)

	r.POST("/lots/:id/reservations", create...) // POST /api/v1/lots/:id/reservations
	r.GET("/reservations/:id", h.GetReservation)

	webpay := r.Group("/payments/webpay")
	{
		webpay.GET("/return", h.WebpayReturn)
		webpay.POST("/return", h.WebpayReturn)
	}
}

// RegisterAdminRoutes expects r to be authenticated for staff. adminOnly
// guards the manual sweep.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	r.GET("/reservations", h.ListReservations)
	r.PATCH("/reservations/:id/pipeline", h.UpdatePipeline)
	r.POST("/sweep", adminOnly, h.RunSweep)
}
