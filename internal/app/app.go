// Package app wires the token manager together: configuration, persistence,
// the in-memory pool, the session lifecycle, the refresh scheduler, the
// notifier and the HTTP surface.
package app

import (
	"strconv"
	"strings"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/auth"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/config"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/notify"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/scheduler"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/storage"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/store"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/token"
)

// App holds all the application dependencies.
type App struct {
	Config    *config.Config
	Storage   storage.Storage
	Pool      *store.AccountStore
	Tokens    *token.Manager
	Scheduler *scheduler.Scheduler
	Notifier  notify.Notifier
	Auth      *auth.Auth
	Upstream  *config.UpstreamBase
	Logger    logging.Logger
}

// New creates the application with all dependencies initialized in order.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Pool:   store.New(),
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	if err := app.initializeStorage(); err != nil {
		return nil, err
	}
	app.initializeUpstream()
	app.initializeNotifier()

	app.Tokens = token.NewManager(cfg.DreaminaLoginURL, cfg.ProxyTimeout)
	app.Auth = auth.New(cfg.AdminKey, cfg.JWTSecret)
	app.Scheduler = scheduler.New(app.Pool, app.Tokens, app.Storage, scheduler.Options{
		Interval:  cfg.RefreshInterval,
		Threshold: cfg.RefreshThreshold,
		Delay:     cfg.LoginDelay,
	})

	return app, nil
}

// initializeStorage opens the persistence backend and seeds the pool with
// every stored account. Seeding order matches insertion order so round-robin
// rotation is stable across restarts.
func (app *App) initializeStorage() error {
	st, err := storage.New(app.Config)
	if err != nil {
		return err
	}
	app.Storage = st

	accounts, err := st.LoadAccounts()
	if err != nil {
		st.Close()
		return err
	}
	seeded := app.Pool.Seed(accounts)
	app.Logger.Info("Account pool seeded",
		logging.Int("accounts", seeded),
		logging.String("backend", app.Config.DatabaseType),
	)
	return nil
}

// initializeUpstream resolves the starting upstream base. A value persisted
// through the management API wins over the environment.
func (app *App) initializeUpstream() {
	base := app.Config.UpstreamBaseURL
	if persisted, err := app.Storage.GetSetting(storage.SettingUpstreamBaseURL); err != nil {
		app.Logger.Warn("Failed to read persisted upstream base", logging.Err(err))
	} else if persisted != "" {
		base = persisted
	}
	app.Upstream = config.NewUpstreamBase(strings.TrimRight(base, "/"))

	if app.Upstream.Get() == "" {
		app.Logger.Warn("No upstream base configured; forwarding is unavailable until one is set")
	}
}

// initializeNotifier connects to Redis when an address is configured. Job
// notifications are optional; a failed connection falls back to the noop
// notifier.
func (app *App) initializeNotifier() {
	if app.Config.RedisAddress == "" {
		app.Notifier = notify.NoopNotifier{}
		return
	}

	db, _ := strconv.Atoi(app.Config.RedisDB)
	poolSize, _ := strconv.Atoi(app.Config.RedisPoolSize)
	notifier, err := notify.NewRedisNotifier(&notify.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       db,
		PoolSize: poolSize,
	})
	if err != nil {
		app.Logger.Warn("Redis initialization failed, continuing without job notifications",
			logging.Err(err),
		)
		app.Notifier = notify.NoopNotifier{}
		return
	}
	app.Notifier = notifier
}

// Cleanup releases all resources.
func (app *App) Cleanup() {
	if app.Scheduler != nil {
		app.Scheduler.Stop()
	}
	if app.Notifier != nil {
		app.Notifier.Close()
	}
	if app.Storage != nil {
		app.Storage.Close()
	}
}
