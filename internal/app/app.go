package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"library/internal/config"
	"library/internal/httpapi"
	"library/internal/library"
	"library/internal/logging"
	"library/internal/notify"
	"library/internal/storage"
	"library/internal/storage/ch"
	"library/internal/storage/pg"
	"library/internal/storage/sqlite"
	"library/internal/storage/stubs"
)

const shutdownTimeout = 5 * time.Second

// App represents the application
type App struct {
	config  *config.Config
	logger  *zap.Logger
	db      storage.Storage
	journal storage.Journal
	service *library.Service
	server  *http.Server
}

// New loads configuration from the environment and creates the application
func New(ctx context.Context) (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	return NewWithConfig(ctx, cfg, logger)
}

// NewWithConfig creates and initializes an application from an explicit configuration
func NewWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	logger.Info("Starting library service", zap.String("storage_backend", cfg.StorageBackend))

	// Initialize database
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	// Initialize journal
	if err := app.initJournal(ctx); err != nil {
		app.closeStores()
		return nil, err
	}

	opts := []library.Option{
		library.WithJournal(app.journal),
		library.WithLogger(logger),
		library.WithDefaultListLimit(cfg.DefaultListLimit),
	}

	// Initialize borrow notifications
	if cfg.NotificationsEnabled() {
		notifier, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramNotifyChatID, logger)
		if err != nil {
			app.closeStores()
			return nil, fmt.Errorf("failed to create Telegram notifier: %w", err)
		}
		opts = append(opts, library.WithNotifier(notifier))
	}

	app.service = library.NewService(app.db, opts...)

	// Initialize HTTP server
	app.initHTTPServer()

	return app, nil
}

// initDatabase opens the configured storage backend and prepares its schema
func (a *App) initDatabase(ctx context.Context) error {
	var db storage.Storage
	switch a.config.StorageBackend {
	case config.BackendMemory:
		a.logger.Info("Using in-memory database")
		db = stubs.NewMockDB()
	case config.BackendSQLite:
		a.logger.Info("Opening SQLite database", zap.String("path", a.config.SQLitePath))
		sqliteDB, err := sqlite.NewDatabase(a.config.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open SQLite database: %w", err)
		}
		db = sqliteDB
	default:
		a.logger.Info("Connecting to PostgreSQL", zap.Int32("max_conns", a.config.PostgresMaxConns))
		pgDB, err := pg.NewPostgresDB(ctx, a.config.DatabaseURL, pg.WithMaxConns(a.config.PostgresMaxConns))
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db = pgDB
	}

	// Initialize database schema
	if err := db.Initialize(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initJournal connects the ClickHouse journal, or keeps the journal in memory when it is not configured
func (a *App) initJournal(ctx context.Context) error {
	var journal storage.Journal
	if a.config.JournalEnabled() {
		tlsStatus := "without TLS"
		if a.config.ClickHouseUseTLS {
			tlsStatus = "with TLS"
		}
		a.logger.Info("Connecting to ClickHouse journal",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.String("tls", tlsStatus),
		)
		chJournal, err := ch.NewJournal(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		journal = chJournal
	} else {
		a.logger.Info("Using in-memory journal")
		journal = stubs.NewMemoryJournal()
	}

	if err := journal.Initialize(ctx); err != nil {
		_ = journal.Close()
		return fmt.Errorf("failed to initialize journal: %w", err)
	}

	a.journal = journal
	return nil
}

// initHTTPServer creates the HTTP server for the REST API
func (a *App) initHTTPServer() {
	api := httpapi.NewServer(a.service, a.logger)

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Handler returns the HTTP handler of the application
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts down
func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
	case err, ok := <-errChan:
		if ok {
			a.logger.Error("HTTP server error", zap.Error(err))
			_ = a.Shutdown()
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Borrow notifications still in flight get the rest of the shutdown budget
	if a.service != nil {
		if err := a.service.Wait(shutdownCtx); err != nil {
			a.logger.Warn("Dropped pending borrow notifications", zap.Error(err))
		}
	}

	err := a.closeStores()
	if err != nil {
		a.logger.Error("Error closing stores", zap.Error(err))
	} else {
		a.logger.Info("Shutdown complete")
	}
	_ = a.logger.Sync()
	return err
}

func (a *App) closeStores() error {
	var errs []error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close journal: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
