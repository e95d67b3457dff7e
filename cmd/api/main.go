package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	activityrepo "github.com/Ramsey-B/clover/internal/repositories/activity"
	childrepo "github.com/Ramsey-B/clover/internal/repositories/child"
	connectionrepo "github.com/Ramsey-B/clover/internal/repositories/connection"
	requestrepo "github.com/Ramsey-B/clover/internal/repositories/connectionrequest"
	invitationrepo "github.com/Ramsey-B/clover/internal/repositories/invitation"
	parentrepo "github.com/Ramsey-B/clover/internal/repositories/parent"
	pendingrepo "github.com/Ramsey-B/clover/internal/repositories/pendinginvitation"
	skeletonrepo "github.com/Ramsey-B/clover/internal/repositories/skeleton"
	"github.com/Ramsey-B/clover/pkg/connections"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/invitations"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/participants"
	"github.com/Ramsey-B/clover/pkg/propagation"
	"github.com/Ramsey-B/clover/pkg/registration"
	activitiesroute "github.com/Ramsey-B/clover/pkg/routes/activities"
	connectionsroute "github.com/Ramsey-B/clover/pkg/routes/connections"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	parentsroute "github.com/Ramsey-B/clover/pkg/routes/parents"
	"github.com/Ramsey-B/clover/pkg/skeletons"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	if cfg.TracingEnabled {
		shutdown, err := setupTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to set up tracing")
			os.Exit(1)
		}
		defer shutdown(ctx)
	}

	var db database.DB
	var producer *kafka.Producer
	var graphClient *graph.Client

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&bootDependency{
		name: "database",
		start: func(ctx context.Context) error {
			var err error
			db, err = connectDatabase(cfg, logger)
			return err
		},
		stop: func(ctx context.Context) error { return db.Close() },
	})
	boot.AddDependency(&bootDependency{
		name:      "migrations",
		dependsOn: []string{"database"},
		start: func(ctx context.Context) error {
			return runMigrations(cfg, logger, db)
		},
	})
	if cfg.KafkaEnabled {
		boot.AddDependency(&bootDependency{
			name: "kafka",
			start: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			stop: func(ctx context.Context) error { return producer.Close() },
		})
	}
	if cfg.GraphDBEnabled {
		boot.AddDependency(&bootDependency{
			name: "graph",
			start: func(ctx context.Context) error {
				var err error
				graphClient, err = graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, logger)
				if err != nil {
					return err
				}
				return graphClient.VerifyConnectivity(ctx)
			},
			stop: func(ctx context.Context) error { return graphClient.Close(ctx) },
		})
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start dependencies")
		os.Exit(1)
	}
	defer boot.Stop(ctx)

	emitter := events.NewEmitter(producer, logger)
	var network *graph.NetworkService
	if graphClient != nil {
		network = graph.NewNetworkService(graphClient, logger)
	}

	// Repositories
	parents := parentrepo.NewRepository(db, logger)
	children := childrepo.NewRepository(db, logger)
	requests := requestrepo.NewRepository(db, logger)
	conns := connectionrepo.NewRepository(db, logger)
	skels := skeletonrepo.NewRepository(db, logger)
	pendings := pendingrepo.NewRepository(db, logger)
	invs := invitationrepo.NewRepository(db, logger)
	activities := activityrepo.NewRepository(db, logger)

	// Engines
	pendingLedger := ledger.NewLedger(db, logger, pendings, activities, children, parents, skels)
	propagator := propagation.NewPropagator(logger, pendingLedger, invs, activities, children)
	registry := skeletons.NewRegistry(db, logger, skels, parents, children)
	merger := skeletons.NewMergeEngine(db, logger, skels, parents, children, requests, propagator)
	connectionService := connections.NewService(db, logger, parents, children, requests, conns, propagator, emitter, network)
	invitationService := invitations.NewService(logger, activities, invs, children, parents, emitter)
	registrationService := registration.NewService(db, logger, parents, children, merger, emitter)
	resolver := participants.NewResolver(logger, activities, invs, pendings, children, parents, conns, skels)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	ectoinject.RegisterInstance[ectologger.Logger](container, logger)
	ectoinject.RegisterInstance[*connections.Service](container, connectionService)
	ectoinject.RegisterInstance[*skeletons.Registry](container, registry)
	ectoinject.RegisterInstance[*ledger.Ledger](container, pendingLedger)
	ectoinject.RegisterInstance[*invitations.Service](container, invitationService)
	ectoinject.RegisterInstance[*registration.Service](container, registrationService)
	ectoinject.RegisterInstance[*participants.Resolver](container, resolver)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker := health.NewChecker(db, graphClient, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	connectionsroute.Register(api.Group("/connections"))
	activitiesroute.Register(api.Group("/activities"))
	parentsroute.Register(api.Group("/parents"))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.WithFields(map[string]any{"addr": addr}).Info("Starting server")
		checker.SetReady(true)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server stopped")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}
}

// bootDependency adapts a pair of closures to the startup sequencer.
type bootDependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *bootDependency) GetName() string { return d.name }

func (d *bootDependency) DependsOn() []string { return d.dependsOn }

func (d *bootDependency) Start(ctx context.Context) error {
	return d.start(ctx)
}

func (d *bootDependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func connectDatabase(cfg config.Config, logger ectologger.Logger) (database.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	return db, nil
}

func runMigrations(cfg config.Config, logger ectologger.Logger, db database.DB) error {
	driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func setupTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	otlpCfg := exporters.DefaultOTLPConfig()
	otlpCfg.Endpoint = cfg.TracingOTLPEndpoint
	otlpCfg.Protocol = cfg.TracingOTLPProtocol

	exporter, err := exporters.NewOTLPExporter(ctx, otlpCfg)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))
	return provider.Shutdown, nil
}
