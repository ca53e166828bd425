package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
)

// Container wires docflow's components. Start builds them stage by stage and
// Close releases them in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	sqlDB        *sql.DB
	txm          *sqlite.DB
	repositories *RepositoryBundle
	storage      *StorageBundle
	calendar     port.HolidayCalendar
	exporter     port.ScheduleExporter
	dispatcher   dispatcher.Dispatcher
	workflow     workflow.LifecycleEngine
	services     *ServiceBundle

	closers []namedCloser

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

type namedCloser struct {
	name  string
	close func() error
}

// stage is one step of Start
type stage struct {
	name string
	run  func() error
}

// RepositoryBundle holds the sqlite repositories
type RepositoryBundle struct {
	Template   port.TemplateRepository
	Instance   port.InstanceRepository
	Document   port.DocumentRepository
	ShiftEntry port.ShiftEntryRepository
	Identity   port.IdentityRepository
	History    port.HistoryRepository
}

// ServiceBundle holds the application services the adapters call
type ServiceBundle struct {
	Template service.TemplateService
	Approval service.ApprovalService
	Document service.DocumentService
	Schedule service.ScheduleService
	Identity service.IdentityService
}

// HealthStatus reports per-component health
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth is the health of one component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config is required")
	case logger == nil:
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start opens the database and builds storage, the holiday calendar, the
// exporter, the dispatcher, the lifecycle engine and the services, in that
// order. A failed stage releases whatever the earlier stages opened.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return errors.New("container has been closed")
	}
	if c.ready.Load() {
		return errors.New("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	stages := []stage{
		{"database", c.initDatabase},
		{"storage", c.initStorage},
		{"calendar", c.initCalendar},
		{"dispatcher", c.initDispatcher},
		{"workflow", c.initWorkflow},
		{"services", c.initServices},
	}
	for _, s := range stages {
		if err := s.run(); err != nil {
			c.logger.Error("Container stage failed", zap.String("stage", s.name), zap.Error(err))
			_ = c.release()
			c.cancel()
			return fmt.Errorf("init %s: %w", s.name, err)
		}
		c.logger.Debug("Container stage ready", zap.String("stage", s.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started", zap.Int("stages", len(stages)))
	return nil
}

// Close drains the dispatcher and closes the database
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return errors.New("container already closed")
	}
	c.ready.Store(false)
	if c.cancel != nil {
		c.cancel()
	}

	if err := c.release(); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed")
	return nil
}

// onClose registers a closer run by release, last registered first
func (c *Container) onClose(name string, fn func() error) {
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

func (c *Container) release() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
			continue
		}
		c.logger.Debug("Component closed", zap.String("component", cl.name))
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Ready reports whether Start completed
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the database and reports which components were built
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}
	built := func(ok bool) error {
		if ok {
			return nil
		}
		return errors.New("not initialized")
	}

	if c.sqlDB == nil {
		set("database", errors.New("not initialized"))
	} else if err := c.sqlDB.Ping(); err != nil {
		set("database", fmt.Errorf("ping failed: %w", err))
	} else {
		set("database", nil)
	}
	set("repositories", built(c.repositories != nil))
	set("storage", built(c.storage != nil))
	set("dispatcher", built(c.dispatcher != nil))
	set("services", built(c.services != nil))
	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.onClose("database", bundle.DB.Close)
	c.sqlDB = bundle.SqlDB
	c.txm = bundle.TransactionMgr

	c.repositories, err = ProvideRepositories(c.sqlDB, c.logger)
	return err
}

func (c *Container) initStorage() error {
	bundle, err := ProvideStorage(c.ctx, &c.config.Storage, c.repositories.Identity, c.logger)
	if err != nil {
		return err
	}
	c.storage = bundle
	return nil
}

func (c *Container) initCalendar() error {
	cal, err := ProvideCalendar(&c.config.Calendar, c.logger)
	if err != nil {
		return err
	}
	c.calendar = cal
	c.exporter = ProvideExporter(&c.config.Export, c.logger)
	return nil
}

func (c *Container) initDispatcher() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	// async handlers finish before the database closes
	c.onClose("dispatcher", disp.Close)
	c.dispatcher = disp
	return nil
}

func (c *Container) initWorkflow() error {
	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.txm,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = engine
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.txm,
		Signatures: c.storage.Signatures,
		Calendar:   c.calendar,
		Exporter:   c.exporter,
		Engine:     c.workflow,
		Dispatcher: c.dispatcher,
		Visibility: c.config.Visibility,
		Schedule:   c.config.Schedule,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

// DB returns the transaction manager
func (c *Container) DB() port.TransactionManager { return c.txm }

// Repositories returns the repository bundle
func (c *Container) Repositories() *RepositoryBundle { return c.repositories }

// Storage returns the blob driver and signature store
func (c *Container) Storage() *StorageBundle { return c.storage }

func (c *Container) Dispatcher() dispatcher.Dispatcher { return c.dispatcher }

func (c *Container) WorkflowEngine() workflow.LifecycleEngine { return c.workflow }

// Services returns the service bundle
func (c *Container) Services() *ServiceBundle { return c.services }

func (c *Container) Logger() *zap.Logger { return c.logger }

func (c *Container) Config() *Config { return c.config }

// KVLogger exposes the container's logger to adapters that log in key-value pairs
func (c *Container) KVLogger() service.Logger {
	return kvLogger{c.logger}
}

// kvLogger adapts zap to the Logger interfaces of the services, the engine
// and the dispatcher
type kvLogger struct {
	z *zap.Logger
}

func (l kvLogger) Info(msg string, kv ...interface{})  { l.z.Info(msg, convertToZapFields(kv...)...) }
func (l kvLogger) Warn(msg string, kv ...interface{})  { l.z.Warn(msg, convertToZapFields(kv...)...) }
func (l kvLogger) Error(msg string, kv ...interface{}) { l.z.Error(msg, convertToZapFields(kv...)...) }

// convertToZapFields pairs up keys and values. Non-string keys and a
// trailing key without value are dropped; error values keep their key.
func convertToZapFields(kv ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			fields = append(fields, zap.NamedError(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}
	return fields
}
