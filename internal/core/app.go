package core

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/smahi/mirrorbot/internal/assets"
	"github.com/smahi/mirrorbot/internal/bulk"
	"github.com/smahi/mirrorbot/internal/config"
	"github.com/smahi/mirrorbot/internal/db"
	"github.com/smahi/mirrorbot/internal/hosts"
	"github.com/smahi/mirrorbot/internal/jobs"
	"github.com/smahi/mirrorbot/internal/status"
	"github.com/smahi/mirrorbot/internal/store"
	"github.com/smahi/mirrorbot/internal/websocket"
)

// App holds the core components shared across the server, the schedulers and
// the background jobs. Everything is constructed here once and passed down
// explicitly.
type App struct {
	config   *config.Config
	database *sql.DB
	registry *status.Registry
	hub      *websocket.Hub
	bulkCli  *bulk.Client
	hostSet  *hosts.Set
	jobMgr   *jobs.JobManager
	st       *store.Store
	stopWs   func()
}

// New sets up a new App instance: configuration, database with migrations,
// the operation registry, the websocket hub and the event bridge between the
// two.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(database, assets.MigrationsFS); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app := NewApp(cfg, database)
	log.Println("Core application setup complete.")
	return app, nil
}

// NewApp wires an App from an existing configuration and database. Tests use
// it directly with an in-memory database.
func NewApp(cfg *config.Config, database *sql.DB) *App {
	registry := status.New(time.Duration(cfg.Status.GraceMinutes) * time.Minute)
	hub := websocket.NewHub()
	go hub.Run()
	stopWs := websocket.Forward(hub, registry)

	app := &App{
		config:   cfg,
		database: database,
		registry: registry,
		hub:      hub,
		bulkCli:  bulk.NewClient(cfg.Bulk.URL),
		hostSet:  hosts.NewSet(),
		st:       store.New(database),
		stopWs:   stopWs,
	}
	app.jobMgr = jobs.NewManager(app)
	jobs.RegisterDefaults(app.jobMgr)
	return app
}

func (a *App) Config() *config.Config       { return a.config }
func (a *App) DB() *sql.DB                  { return a.database }
func (a *App) Registry() *status.Registry   { return a.registry }
func (a *App) WsHub() *websocket.Hub        { return a.hub }
func (a *App) Bulk() *bulk.Client           { return a.bulkCli }
func (a *App) Hosts() *hosts.Set            { return a.hostSet }
func (a *App) JobManager() *jobs.JobManager { return a.jobMgr }
func (a *App) Store() *store.Store          { return a.st }

// Close gracefully releases the application's resources.
func (a *App) Close() {
	if a.stopWs != nil {
		a.stopWs()
	}
	if a.database != nil {
		a.database.Close()
	}
}
