package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	gatekeeper "github.com/goliatone/go-gatekeeper"
	"github.com/goliatone/go-gatekeeper/cmd/gatekeeperd/config"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	config *gconfig.Container[*config.BaseConfig]
	bunDB  *bun.DB
	repo   gatekeeper.RepositoryManager
	auth   gatekeeper.Authenticator
	gate   *gatekeeper.Gate
	srv    router.Server[*fiber.App]
	logger *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("gatekeeperd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if app.Config().IsDevelopment() {
		fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(app); err != nil {
		panic(err)
	}

	RegisterRoutes(app)

	app.srv.Serve(app.Config().GetServer().GetAddr())

	WaitExitSignal()
}

func WithPersistence(ctx context.Context, app *App) error {
	pcfg := app.Config().GetPersistence()

	db, err := sql.Open(sqliteshim.ShimName, pcfg.GetDSN())
	if err != nil {
		return err
	}

	persistence.RegisterModel((*gatekeeper.Account)(nil))
	persistence.RegisterModel((*gatekeeper.AuditRecord)(nil))

	client, err := persistence.New(pcfg, db, sqlitedialect.New())
	if err != nil {
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(gatekeeper.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)
	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.repo = gatekeeper.NewRepositoryManager(client.DB())

	return app.repo.Validate()
}

func WithHTTPServer(app *App) error {
	acfg := app.Config().GetAuth()

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		a := router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:       "gatekeeperd",
			StrictRouting: false,
		}))

		a.Use(cors.New(cors.Config{
			AllowOrigins:     acfg.GetCORSOrigin(),
			AllowCredentials: acfg.GetCORSOrigin() != "*",
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		}))

		return a
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	app.srv = srv
	app.auth = gatekeeper.NewAuthenticator(app.repo, acfg).
		WithLogger(app.GetLogger("auth"))
	app.gate = gatekeeper.NewGate(app.auth, acfg).
		WithLogger(app.GetLogger("gate"))

	return nil
}

func RegisterRoutes(app *App) {
	r := app.srv.Router()
	acfg := app.Config().GetAuth()

	gatekeeper.RegisterAccountRoutes(r, app.gate,
		gatekeeper.WithAccountControllerRepo(app.repo),
		gatekeeper.WithAccountControllerAuther(app.auth),
		gatekeeper.WithAccountControllerConfig(acfg),
		gatekeeper.WithAccountControllerLogger(app.GetLogger("accounts")),
	)

	gatekeeper.RegisterAdminRoutes(r, app.gate,
		gatekeeper.WithAdminControllerRepo(app.repo),
		gatekeeper.WithAdminControllerConfig(acfg),
		gatekeeper.WithAdminControllerLogger(app.GetLogger("admin")),
	)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
