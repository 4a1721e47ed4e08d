// Package app wires a loaded configuration into running components: the
// database driver, the catalog, the query builder, the gateway, the
// resource service and, when configured, the snapshot archive.
package app

import (
	"context"

	"github.com/koustreak/rowgate/internal/config"
	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/database/mssql"
	"github.com/koustreak/rowgate/internal/database/mysql"
	"github.com/koustreak/rowgate/internal/database/postgres"
	"github.com/koustreak/rowgate/internal/database/sqlite"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/filestore"
	"github.com/koustreak/rowgate/internal/filestore/minio"
	"github.com/koustreak/rowgate/internal/gateway"
	"github.com/koustreak/rowgate/internal/logger"
	"github.com/koustreak/rowgate/internal/query"
	"github.com/koustreak/rowgate/internal/resource"
	"github.com/koustreak/rowgate/internal/schema"
	"github.com/koustreak/rowgate/internal/server"
	"github.com/koustreak/rowgate/internal/snapshot"
)

// Backend is what every driver provides.
type Backend interface {
	database.DB
	database.Introspector
}

// App holds the wired components. Close releases the connections.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	DB        Backend
	Service   *resource.Service
	Store     filestore.Store
	Snapshots *snapshot.Archiver
}

// OpenBackend connects the driver named by cfg.Driver.
func OpenBackend(ctx context.Context, cfg *database.Config) (Backend, error) {
	var (
		db  Backend
		err error
	)
	switch cfg.Driver {
	case database.DriverPostgres:
		db, err = nilOnError(postgres.New(ctx, cfg))
	case database.DriverMySQL:
		db, err = nilOnError(mysql.New(ctx, cfg))
	case database.DriverSQLite:
		db, err = nilOnError(sqlite.New(ctx, cfg))
	case database.DriverSQLServer:
		db, err = nilOnError(mssql.New(ctx, cfg))
	default:
		return nil, errs.Newf(errs.ErrKindInvalidValue, "unsupported database driver %q", cfg.Driver)
	}
	return db, err
}

// nilOnError keeps a nil *Driver from becoming a non-nil Backend.
func nilOnError[T Backend](d T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Open validates cfg and connects everything it names. The object store is
// only contacted when a snapshot section is present.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbCfg := cfg.DatabaseConfig()
	db, err := OpenBackend(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	log.InfoEvent().Str("driver", string(dbCfg.Driver)).Msg("database connected")

	a := &App{
		Config: cfg,
		Log:    log,
		DB:     db,
		Service: resource.New(
			schema.NewCatalog(db, nil, log),
			query.New(db.Dialect(), nil),
			gateway.New(db, gateway.OptionsFromConfig(dbCfg, log)),
			log,
		),
	}

	if storeCfg := cfg.StoreConfig(); storeCfg != nil {
		store, err := minio.New(ctx, storeCfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.Store = store
		snapCfg := cfg.SnapshotConfig()
		a.Snapshots = snapshot.New(store, a.Service, snapCfg, log)
		log.Infof("snapshots enabled in bucket %s", snapCfg.Bucket)
	}
	return a, nil
}

// Server builds the HTTP server over the wired service.
func (a *App) Server() *server.Server {
	var snaps server.Snapshots
	if a.Snapshots != nil {
		snaps = a.Snapshots
	}
	return server.New(a.Config.ServerConfig(), a.Service, a.DB, snaps, a.Log)
}

func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
	a.DB.Close()
}
