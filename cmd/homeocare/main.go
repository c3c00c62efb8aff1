package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/krishx009/HomeoCare/internal/config"
	"github.com/krishx009/HomeoCare/internal/domain/patient"
	v1 "github.com/krishx009/HomeoCare/internal/handler/v1"
	"github.com/krishx009/HomeoCare/internal/repository"
	"github.com/krishx009/HomeoCare/internal/repository/mongostore"
	"github.com/krishx009/HomeoCare/internal/repository/postgres"
	"github.com/krishx009/HomeoCare/internal/service"
	"github.com/krishx009/HomeoCare/pkg/auth"
	"github.com/krishx009/HomeoCare/pkg/database"
	"github.com/krishx009/HomeoCare/pkg/events"
	"github.com/krishx009/HomeoCare/pkg/logger"
	"github.com/krishx009/HomeoCare/pkg/metrics"
	"github.com/krishx009/HomeoCare/pkg/tracer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "homeocare",
		Short:        "HomeoCare practice management API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create schemas and indexes for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Info("migrations applied", zap.String("store", cfg.Store.Driver))
			return nil
		},
	}
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

// store bundles the repositories of one backend with its lifecycle hooks.
type store struct {
	patients patient.Repository
	doctors  service.DoctorRepository
	ping     func(ctx context.Context) error
	migrate  func(ctx context.Context) error
	close    func()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return mongoStore(client, db, log), nil
	default:
		db, err := database.Connect(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return postgresStore(db, log)
	}
}

func mongoStore(client *mongo.Client, db *mongo.Database, log *zap.Logger) *store {
	return &store{
		patients: mongostore.NewPatientRepository(db),
		doctors:  mongostore.NewDoctorRepository(db),
		ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
		migrate:  func(ctx context.Context) error { return database.MigrateMongo(ctx, db, log) },
		close: func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("mongodb disconnect failed", zap.Error(err))
			}
		},
	}
}

func postgresStore(db *gorm.DB, log *zap.Logger) (*store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}
	return &store{
		patients: postgres.NewPatientRepository(db),
		doctors:  postgres.NewDoctorRepository(db),
		ping:     sqlDB.PingContext,
		migrate:  func(context.Context) error { return database.Migrate(db, log) },
		close: func() {
			if err := sqlDB.Close(); err != nil {
				log.Warn("postgres close failed", zap.Error(err))
			}
		},
	}, nil
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tp, err := tracer.Init(ctx, cfg.App, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initialising tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	s, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		return err
	}
	defer s.close()
	log.Info("connected to store", zap.String("driver", cfg.Store.Driver))

	m := metrics.NewCollector("homeocare", prometheus.DefaultRegisterer)

	var pub events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		pub = events.NewKafkaPublisher(cfg.Events, log)
		log.Info("publishing clinical events", zap.Strings("brokers", cfg.Events.Brokers), zap.String("topic", cfg.Events.Topic))
	}
	eventSvc := service.NewEventService(pub, cfg.Events.BufferSize, cfg.Events.WriteTimeout, m, log)

	patients := repository.NewInstrumentedPatients(s.patients, m)
	jwtManager := auth.NewJWTManager(cfg.JWT)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := v1.NewRouter(v1.RouterDeps{
		Patients:      service.NewPatientService(patients, eventSvc, m, cfg.Store.MaxWriteAttempts, log),
		Consultations: service.NewConsultationService(patients, eventSvc, m, cfg.Store.MaxWriteAttempts, log),
		Auth:          service.NewAuthService(s.doctors, jwtManager, cfg.JWT.Issuer, log),
		Verifier:      jwtManager,
		Metrics:       m,
		Log:           log,
		CORS:          cfg.CORS,
		RateLimit:     cfg.RateLimit,
		Ready:         s.ping,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("version", cfg.App.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
		return err
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	// After the server so in-flight requests can still emit.
	if err := eventSvc.Shutdown(shutdownCtx); err != nil {
		log.Warn("event service shutdown failed", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
