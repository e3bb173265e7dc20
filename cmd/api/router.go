package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"loteo/internal/config"
	"loteo/internal/domain/auth"
	"loteo/internal/domain/lot"
	"loteo/internal/domain/lotfeed"
	"loteo/internal/domain/payment"
	"loteo/internal/domain/reservation"
	"loteo/internal/middleware"
	"loteo/internal/pkg/clock"
	jwtsvc "loteo/internal/pkg/jwt"
)

// deps are the process-level collaborators main builds from config.
type deps struct {
	db       *gorm.DB
	gateway  payment.Gateway
	notifier reservation.PaidDispatcher
	redis    *redis.Client
	clock    clock.Clock
	log      logrus.FieldLogger
}

type app struct {
	router       *gin.Engine
	hub          *lotfeed.Hub
	reservations *reservation.Service
}

func newApp(cfg *config.Config, d deps) *app {
	j := jwtsvc.New(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	hub := lotfeed.NewHub(d.log)

	authService := auth.NewService(auth.NewRepository(d.db), j, d.clock, d.log)
	authHandler := auth.NewHandler(authService)

	lotHandler := lot.NewHandler(lot.NewRepository(d.db), d.clock, cfg.Reservation.DefaultFee)

	reservationService := reservation.NewService(d.db, d.gateway, hub, d.notifier, d.clock, d.log, reservation.Options{
		LockDuration: cfg.Reservation.LockDuration(),
		DefaultFee:   cfg.Reservation.DefaultFee,
		ReturnURL:    cfg.App.ReturnURL(),
	})
	crmService := reservation.NewCRMService(reservation.NewRepository(d.db), authService, d.log)
	reservationHandler := reservation.NewHandler(reservationService, crmService, reservation.Redirects{
		FrontendURL:  cfg.App.FrontendURL,
		SuccessPath:  cfg.App.SuccessPath,
		FailurePath:  cfg.App.FailurePath,
		SecureCookie: cfg.App.IsProd(),
	})
	feedHandler := lotfeed.NewHandler(hub, cfg.CORS.AllowOrigins)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorLogger(d.log), middleware.RequestLogger(d.log), middleware.CORS(cfg.CORS))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": hub.Count()})
	})
	feedHandler.RegisterRoutes(r)

	v1 := r.Group("/api/v1")
	{
		lotHandler.RegisterRoutes(v1)
		reservationHandler.RegisterRoutes(v1, middleware.RateLimit(cfg.RateLimit, d.redis, d.log))
		authHandler.RegisterPublicRoutes(v1)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(j))
		authHandler.RegisterProtectedRoutes(protected)

		staff := v1.Group("/admin")
		staff.Use(middleware.JWTAuth(j), middleware.StaffOnly())
		{
			reservationHandler.RegisterAdminRoutes(staff, middleware.AdminOnly())
			lotHandler.RegisterAdminRoutes(staff)

			admin := staff.Group("")
			admin.Use(middleware.AdminOnly())
			authHandler.RegisterAdminRoutes(admin)
		}
	}

	// cron entrypoint, guarded by a shared token instead of a user session
	internal := r.Group("/internal")
	internal.Use(middleware.InternalTokenAuth(cfg.Internal, d.log))
	internal.POST("/sweep", reservationHandler.RunSweep)

	return &app{router: r, hub: hub, reservations: reservationService}
}
