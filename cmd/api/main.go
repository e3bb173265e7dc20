package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"loteo/internal/config"
	"loteo/internal/database"
	"loteo/internal/domain/notification"
	"loteo/internal/domain/payment"
	"loteo/internal/domain/reservation"
	"loteo/internal/pkg/clock"
	"loteo/internal/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New(cfg.Log.Level, cfg.App.Env)
	if cfg.App.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DB.URL, database.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("database connect failed")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting disabled")
	}
	dispatcher := notification.NewDispatcher(
		notification.FromConfig(cfg.Notify.WebhookURL, cfg.Notify.AMQPURL, cfg.Notify.Queue, cfg.Notify.Timeout),
		cfg.Notify.Timeout,
		log,
	)

	a := newApp(cfg, deps{
		db:       db,
		gateway:  payment.NewWebpayClient(cfg.Webpay),
		notifier: dispatcher,
		redis:    rdb,
		clock:    clock.NewRealClock(),
		log:      log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Reservation.SweepInterval > 0 {
		go runSweeper(ctx, a.reservations, cfg.Reservation.SweepInterval, log)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	// paid notifications already in flight get to finish
	dispatcher.Wait()
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func runSweeper(ctx context.Context, svc *reservation.Service, every time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	log.WithField("every", every.String()).Info("in-process sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Sweep(ctx); err != nil {
				log.WithError(err).Warn("scheduled sweep failed")
			}
		}
	}
}
