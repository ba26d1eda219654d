package cmd

import (
	"card-reconciliation-service/cmd/reconciler/config"
	"card-reconciliation-service/internal/reconciler"
	"card-reconciliation-service/internal/store"
	"card-reconciliation-service/internal/store/postgres"
	"card-reconciliation-service/internal/store/sqlite"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

// openStore connects to the configured database.
func openStore(settings *config.Settings) (store.Store, error) {
	log := logger.GetGlobalLogger().WithComponent("store").
		WithField("driver", settings.Database.Driver)

	switch settings.Database.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(settings.Database.DSN)
		if err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "open sqlite store", err)
		}
		log.Debug("Store opened")
		return st, nil
	case config.DriverPostgres:
		st, err := postgres.Open(settings.Database.DSN, settings.PostgresOptions())
		if err != nil {
			return nil, errors.NetworkError(errors.CodeConnectionFailed, "postgres", err)
		}
		log.WithField("auto_migrate", settings.Database.AutoMigrate).Debug("Store opened")
		return st, nil
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "database.driver", settings.Database.Driver, nil)
	}
}

// newOrchestrator opens the store and builds the engine over it. The caller
// closes the returned store.
func newOrchestrator(settings *config.Settings) (*reconciler.Orchestrator, store.Store, error) {
	rc, err := settings.ToReconcilerConfig()
	if err != nil {
		return nil, nil, err
	}

	st, err := openStore(settings)
	if err != nil {
		return nil, nil, err
	}

	orch, err := reconciler.NewOrchestrator(st, rc, logger.GetGlobalLogger())
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return orch, st, nil
}
