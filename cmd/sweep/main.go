package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"loteo/internal/config"
	"loteo/internal/database"
	"loteo/internal/domain/payment"
	"loteo/internal/domain/reservation"
	"loteo/internal/pkg/clock"
	"loteo/internal/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "sweep",
		Usage: "reclaim lots whose reservation hold has expired",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "run a single sweep and exit, ignoring --every",
			},
			&cli.DurationFlag{
				Name:  "every",
				Usage: "keep running and sweep on this interval; 0 sweeps once and exits",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("sweep failed")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.App.Env)

	db, err := database.Connect(cfg.DB.URL, database.PoolConfig{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	// The sweep never talks to the gateway or the live feed; nil
	// collaborators fall back to no-ops.
	svc := reservation.NewService(db, payment.NewWebpayClient(cfg.Webpay), nil, nil, clock.NewRealClock(), log, reservation.Options{
		LockDuration: cfg.Reservation.LockDuration(),
		DefaultFee:   cfg.Reservation.DefaultFee,
		ReturnURL:    cfg.App.ReturnURL(),
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	every := c.Duration("every")
	if c.Bool("once") || every <= 0 {
		return sweepOnce(ctx, svc, log)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	log.WithField("every", every.String()).Info("sweeper started")
	for {
		if err := sweepOnce(ctx, svc, log); err != nil {
			log.WithError(err).Warn("sweep failed, retrying next tick")
		}
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, svc *reservation.Service, log logrus.FieldLogger) error {
	res, err := svc.Sweep(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"expired_locks": res.ExpiredLocks,
		"released_lots": len(res.ReleasedLots),
	}).Info("sweep done")
	return nil
}
