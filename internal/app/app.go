// Package app assembles the data lake from configuration: database,
// connectors, one orchestrator per connection, readers and the event hub.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/connector/dashdoc"
	"github.com/xelth-com/datalake/internal/connector/odoo"
	"github.com/xelth-com/datalake/internal/database"
	"github.com/xelth-com/datalake/internal/metrics"
	"github.com/xelth-com/datalake/internal/models"
	"github.com/xelth-com/datalake/internal/reader"
	datasync "github.com/xelth-com/datalake/internal/sync"
	"github.com/xelth-com/datalake/internal/websocket"
	"gorm.io/gorm"
)

// Connectors returns the registry of every upstream the data lake can mirror
func Connectors() *connector.Registry {
	reg := connector.NewRegistry()
	// registration only fails on duplicates
	_ = reg.Register(config.ConnectorDashdoc, dashdoc.Factory)
	_ = reg.Register(config.ConnectorOdoo, odoo.Factory)
	return reg
}

// OrchestratorDeps are the collaborators shared by every orchestrator
type OrchestratorDeps struct {
	Sync      *config.SyncConfig
	Publisher datasync.EventPublisher
	Metrics   *metrics.Collector
	Logger    logrus.FieldLogger
}

// BuildOrchestrator wires the state store, writer and syncers of one
// connection around an already built connector
func BuildOrchestrator(db *gorm.DB, conn config.ConnectionConfig, c connector.Connector, deps OrchestratorDeps) (*datasync.Orchestrator, error) {
	log := deps.Logger.WithFields(logrus.Fields{
		"organization": conn.OrganizationID,
		"connection":   conn.ConnectionID,
	})

	state := datasync.NewStateStore(db, conn.OrganizationID, conn.ConnectionID, deps.Sync.MaxErrors)
	syncers := datasync.NewSyncers(c, datasync.SyncerDeps{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ConnectionID,
		Config:         deps.Sync,
		Writer:         datasync.NewBulkWriter(db, deps.Sync.BatchSize),
		State:          state,
		Logger:         log,
		Metrics:        deps.Metrics,
	})

	return datasync.NewOrchestrator(datasync.Options{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ConnectionID,
		Config:         deps.Sync,
		Connector:      c,
		Syncers:        syncers,
		State:          state,
		Publisher:      deps.Publisher,
		Metrics:        deps.Metrics,
		Logger:         log,
	})
}

// BuildManager builds an orchestrator for every active connection
func BuildManager(db *gorm.DB, registry *connector.Registry, deps OrchestratorDeps) (*datasync.Manager, error) {
	manager := datasync.NewManager()
	for _, conn := range deps.Sync.Active() {
		c, err := registry.Build(conn, connector.Deps{
			Sync:    deps.Sync,
			Logger:  deps.Logger,
			Metrics: deps.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("connection %s: %w", conn.ConnectionID, err)
		}
		o, err := BuildOrchestrator(db, conn, c, deps)
		if err != nil {
			return nil, fmt.Errorf("connection %s: %w", conn.ConnectionID, err)
		}
		if err := manager.Add(o); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// App is the assembled service
type App struct {
	Config     *config.Config
	Sync       *config.SyncConfig
	DB         *database.DB
	Log        *logrus.Logger
	Prometheus *prometheus.Registry
	Metrics    *metrics.Collector
	Reader     *reader.Reader
	Hub        *websocket.Hub
	Manager    *datasync.Manager
}

// New connects the database and builds every component. Nothing is
// started; see Run.
func New(cfg *config.Config, syncCfg *config.SyncConfig, logger *logrus.Logger) (*App, error) {
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Alter {
		logger.Info("🚀 Synchronizing database schema...")
		if err := db.AutoMigrate(models.All()...); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("✅ Schema synchronized successfully")
	}

	a, err := assemble(db.DB, cfg, syncCfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.DB = db
	return a, nil
}

func assemble(db *gorm.DB, cfg *config.Config, syncCfg *config.SyncConfig, logger *logrus.Logger) (*App, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(promReg)

	rd, err := reader.New(db, syncCfg)
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger)
	manager, err := BuildManager(db, Connectors(), OrchestratorDeps{
		Sync:      syncCfg,
		Publisher: datasync.MultiPublisher{datasync.LogPublisher{Logger: logger}, hub},
		Metrics:   collector,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Config:     cfg,
		Sync:       syncCfg,
		Log:        logger,
		Prometheus: promReg,
		Metrics:    collector,
		Reader:     rd,
		Hub:        hub,
		Manager:    manager,
	}, nil
}

// Run starts the hub and every orchestrator. Connections that fail to
// start are logged; the others keep running.
func (a *App) Run(ctx context.Context) {
	go a.Hub.Run(ctx)

	if len(a.Manager.List()) == 0 {
		a.Log.Warn("⚠️ No connections configured, nothing to mirror")
		return
	}
	if err := a.Manager.StartAll(ctx); err != nil {
		a.Log.WithError(err).Error("❌ Some connections failed to start")
	}
}

// Shutdown stops the schedulers, waits for in-flight runs until ctx is
// done, then cancels whatever is left and closes the database
func (a *App) Shutdown(ctx context.Context) error {
	select {
	case <-a.Manager.StopAll().Done():
		a.Log.Info("✅ Sync runs drained")
	case <-ctx.Done():
		a.Log.Warn("⚠️ Shutdown timeout, cancelling in-flight sync runs")
	}
	a.Manager.CloseAll()

	if a.DB == nil {
		return nil
	}
	a.Log.Info("🛑 Closing database connection...")
	return a.DB.Close()
}
