package main

import (
	"context"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"loteo/internal/config"
	"loteo/internal/database"
	"loteo/internal/domain/auth"
	"loteo/internal/domain/lot"
	"loteo/internal/pkg/clock"
	"loteo/internal/pkg/errs"
	jwtsvc "loteo/internal/pkg/jwt"
	"loteo/internal/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "seed",
		Usage: "migrate the schema, load the lot catalog and bootstrap staff accounts",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "fee",
				Usage: "per-lot reservation fee stored on every lot; 0 keeps the configured default",
			},
			&cli.StringSliceFlag{
				Name:  "seller",
				Usage: "seller account as email:name (repeatable)",
			},
			&cli.StringFlag{
				Name:    "seller-password",
				Usage:   "initial password for every --seller account",
				EnvVars: []string{"SEED_SELLER_PASSWORD"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("seed failed")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.App.Env)

	db, err := database.Connect(cfg.DB.URL, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, log)
	if err != nil {
		return err
	}
	defer closeDB(db)

	log.Info("running migrations")
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx := c.Context
	created, err := lot.NewRepository(db).Seed(ctx, lot.All(), c.Int64("fee"))
	if err != nil {
		return errs.Wrap(err, "seed lots")
	}
	log.WithFields(logrus.Fields{"created": created, "catalog": lot.Total()}).Info("lot catalog loaded")

	users := auth.NewService(auth.NewRepository(db), jwtsvc.New(cfg.JWT.Secret, cfg.JWT.AccessTTL), clock.NewRealClock(), log)

	if cfg.Admin.Email != "" {
		made, err := users.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name)
		if err != nil {
			return errs.Wrap(err, "bootstrap admin")
		}
		log.WithFields(logrus.Fields{"email": cfg.Admin.Email, "created": made}).Info("admin account checked")
	} else {
		log.Warn("ADMIN_EMAIL not set, skipping admin bootstrap")
	}

	return seedSellers(ctx, users, c.StringSlice("seller"), c.String("seller-password"), log)
}

func seedSellers(ctx context.Context, users *auth.Service, specs []string, password string, log logrus.FieldLogger) error {
	if len(specs) == 0 {
		return nil
	}
	if password == "" {
		return errs.New("--seller-password is required with --seller")
	}
	for _, spec := range specs {
		email, name, ok := strings.Cut(spec, ":")
		if !ok || strings.TrimSpace(email) == "" {
			return errs.Newf("invalid --seller %q, want email:name", spec)
		}
		u, err := users.CreateUser(ctx, auth.CreateUserInput{
			Email:    email,
			Password: password,
			Name:     strings.TrimSpace(name),
			Role:     auth.RoleSeller,
		})
		switch {
		case err == nil:
			log.WithField("email", u.Email).Info("seller created")
		case errs.Is(err, auth.ErrEmailAlreadyExists):
			log.WithField("email", email).Info("seller already exists")
		default:
			return errs.Wrapf(err, "create seller %s", email)
		}
	}
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
