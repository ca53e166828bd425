package container

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/domain/event"
	"github.com/garyjia/docflow/internal/infrastructure/calendar"
	"github.com/garyjia/docflow/internal/infrastructure/export"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/docflow/internal/infrastructure/storage"
	"github.com/garyjia/docflow/migrations"
	"github.com/garyjia/docflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	Blobs      port.BlobStorage
	Signatures *storage.SignatureStore
}

// ProvideDatabase opens the database and applies pending migrations, from
// MigrationsDir when set and from the embedded schema otherwise.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrationsDir(cfg.MigrationsDir)
	} else {
		err = migrator.RunMigrations(migrations.FS)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Template:   repository.NewTemplateRepository(sqlDB, logger),
		Instance:   repository.NewInstanceRepository(sqlDB, logger),
		Document:   repository.NewDocumentRepository(sqlDB, logger),
		ShiftEntry: repository.NewShiftEntryRepository(sqlDB, logger),
		Identity:   repository.NewIdentityRepository(sqlDB, logger),
		History:    repository.NewHistoryRepository(sqlDB, logger),
	}, nil
}

// ProvideStorage creates the blob driver and the signature store on top of it.
func ProvideStorage(ctx context.Context, cfg *StorageConfig, identities port.IdentityRepository, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if identities == nil {
		return nil, fmt.Errorf("identity repository is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	blobs, err := storage.NewStorageFromConfig(ctx, storage.Config{
		Type:           cfg.Type,
		LocalDir:       cfg.LocalDir,
		LocalPublicURL: cfg.LocalPublicURL,
		S3Endpoint:     cfg.S3Endpoint,
		S3Bucket:       cfg.S3Bucket,
		S3Region:       cfg.S3Region,
		S3AccessKey:    cfg.S3AccessKey,
		S3SecretKey:    cfg.S3SecretKey,
		S3PublicURL:    cfg.S3PublicURL,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &StorageBundle{
		Blobs:      blobs,
		Signatures: storage.NewSignatureStore(blobs, identities, logger),
	}, nil
}

// ProvideCalendar loads the holiday calendar.
func ProvideCalendar(cfg *CalendarConfig, logger *zap.Logger) (port.HolidayCalendar, error) {
	if cfg == nil {
		return nil, fmt.Errorf("calendar config is required")
	}
	return calendar.LoadHolidays(cfg.HolidaysPath, logger)
}

// ProvideExporter creates the schedule exporter.
func ProvideExporter(cfg *ExportConfig, logger *zap.Logger) port.ScheduleExporter {
	return export.NewXLSXExporter(cfg.Font, logger)
}

// ProvideDispatcher creates the event dispatcher and subscribes the event log.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(kvLogger{logger}),
	)
	disp.SubscribeNamed(dispatcher.AllEvents, "event_log", "logs every committed domain event", eventLogHandler(logger))
	return disp, nil
}

// WorkflowDeps holds dependencies required for creating the lifecycle engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the document lifecycle engine.
// Services drive it directly inside their transactions; the dispatcher
// only receives the committed results.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.LifecycleEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return workflow.NewEngine(
		deps.Repos.Document,
		deps.Repos.History,
		deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(kvLogger{deps.Logger}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Signatures port.SignatureStore
	Calendar   port.HolidayCalendar
	Exporter   port.ScheduleExporter
	Engine     workflow.LifecycleEngine
	Dispatcher dispatcher.Dispatcher
	Visibility VisibilityConfig
	Schedule   ScheduleConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Engine == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("engine and dispatcher are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := kvLogger{deps.Logger}
	repos := deps.Repos
	policy := workflow.VisibilityPolicy{
		AdminRoles:     deps.Visibility.AdminRoles,
		AdminJobLevels: deps.Visibility.AdminJobLevels,
	}

	documents := service.NewDocumentService(
		repos.Document,
		repos.Instance,
		repos.ShiftEntry,
		repos.History,
		repos.Identity,
		deps.Signatures,
		deps.Engine,
		deps.TxManager,
		deps.Dispatcher,
		policy,
		serviceLogger,
	)

	return &ServiceBundle{
		Template: service.NewTemplateService(repos.Template, deps.TxManager, serviceLogger),
		Approval: service.NewApprovalService(
			repos.Document,
			repos.Template,
			repos.Instance,
			repos.History,
			repos.Identity,
			deps.Signatures,
			deps.Engine,
			deps.TxManager,
			deps.Dispatcher,
			serviceLogger,
		),
		Document: documents,
		Schedule: service.NewScheduleService(
			documents,
			repos.Document,
			repos.ShiftEntry,
			repos.History,
			repos.Identity,
			deps.Signatures,
			deps.Calendar,
			deps.Exporter,
			deps.TxManager,
			deps.Dispatcher,
			service.ScheduleOptions{DefaultNightDutyRequired: deps.Schedule.DefaultNightDutyRequired},
			serviceLogger,
		),
		Identity: service.NewIdentityService(repos.Identity, deps.Signatures, deps.TxManager, serviceLogger),
	}, nil
}

// eventLogHandler records every dispatched event. Final-approval overrides
// are logged at warn level.
func eventLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("type", evt.Type.String()),
			zap.Int64("document_id", evt.DocumentID),
			zap.String("document_type", string(evt.DocumentType)),
			zap.String("actor_id", evt.ActorID),
			zap.String("correlation_id", evt.CorrelationID),
		}
		if evt.InstanceID != 0 {
			fields = append(fields, zap.Int64("instance_id", evt.InstanceID))
		}
		if evt.Type == event.TypeFinalApprovalOverride {
			logger.Warn("Domain event", append(fields, zap.Bool("override", true))...)
			return nil
		}
		logger.Info("Domain event", fields...)
		return nil
	}
}
