package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"catalog-service/internal/api"
	"catalog-service/internal/archive"
	"catalog-service/internal/cache"
	"catalog-service/internal/config"
	"catalog-service/internal/events"
	"catalog-service/internal/ingest"
	"catalog-service/internal/logging"
	"catalog-service/internal/query"
	"catalog-service/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// A missing .env is fine, the environment may be set some other way.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger := logging.New("production", "info")
		logger.Fatal().Err(err).Msg("can't load configuration")
	}

	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	if envErr != nil {
		logger.Debug().Msg("no .env file loaded, relying on system environment")
	}
	logger.Info().Str("env", cfg.AppEnv).Str("log_level", cfg.LogLevel).Msg("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
	logger.Info().Msg("graceful shutdown successful")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// --- Database Connection ---
	db, err := openDatabase(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	dbStore := store.NewPostgresStore(db, logger.With().Str("component", "store").Logger())
	defer func() {
		if err := dbStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("can't close Postgres connection")
		}
	}()

	if err := dbStore.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info().Msg("database connection established and schema ready")

	// --- Optional Integrations ---
	var queryOpts []query.Option
	if cfg.Redis.Enabled() {
		redisClient, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		queryOpts = append(queryOpts, query.WithCache(cache.NewListingCache(redisClient, cfg.Redis.TTL, logger)))
		logger.Info().Msg("listing cache enabled")
	}

	httpOpts := []api.HTTPOption{api.WithMaxUploadBytes(cfg.HttpServer.MaxUploadBytes)}
	if cfg.RabbitMQ.Enabled() {
		amqpConnection, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			return fmt.Errorf("can't open RabbitMQ connection: %w", err)
		}
		defer amqpConnection.Close()

		publisher, err := events.NewPublisher(amqpConnection, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			return err
		}
		defer publisher.Close()
		httpOpts = append(httpOpts, api.WithNotifier(publisher))
		logger.Info().Str("exchange", cfg.RabbitMQ.Exchange).Msg("upload events enabled")
	}

	if cfg.Archive.Enabled() {
		s3Client, err := archive.NewS3Client(ctx, cfg.Archive.Region, cfg.Archive.Endpoint)
		if err != nil {
			return err
		}
		httpOpts = append(httpOpts, api.WithArchiver(archive.NewS3Archive(s3Client, cfg.Archive.Bucket, cfg.Archive.Prefix)))
		logger.Info().Str("bucket", cfg.Archive.Bucket).Msg("upload archive enabled")
	}

	// --- Services & Handlers ---
	pipeline := ingest.NewPipeline(dbStore, logger)
	queries := query.NewService(dbStore, logger, queryOpts...)

	httpHandler := api.NewHTTPHandler(pipeline, queries, dbStore, logger, httpOpts...)
	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      api.NewRouter(logger, httpHandler),
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	var grpcServer *grpc.Server
	var grpcListener net.Listener
	if cfg.GrpcServer.Enabled {
		grpcServer = setupGRPCServer(logger, api.NewGRPCHandler(queries, logger))
		grpcListener, err = net.Listen("tcp", ":"+cfg.GrpcServer.Port)
		if err != nil {
			return fmt.Errorf("can't listen for gRPC on port %s: %w", cfg.GrpcServer.Port, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("port", cfg.HttpServer.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			logger.Info().Str("port", cfg.GrpcServer.Port).Msg("gRPC server listening")
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}

	// --- Graceful Shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("graceful shutdown start")
		shutdown(logger, httpServer, grpcServer)
		return nil
	})

	return g.Wait()
}

func openDatabase(ctx context.Context, pc config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", pc.DSN())
	if err != nil {
		return nil, fmt.Errorf("can't open Postgres connection: %w", err)
	}
	db.SetMaxOpenConns(pc.MaxOpenConns)
	db.SetMaxIdleConns(pc.MaxIdleConns)
	db.SetConnMaxLifetime(pc.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't ping Postgres: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(rc.URL)
	if err != nil {
		return nil, fmt.Errorf("can't parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("can't ping Redis: %w", err)
	}
	return client, nil
}

func setupGRPCServer(logger zerolog.Logger, handler *api.GRPCHandler) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(api.UnaryLoggingInterceptor(logger)))

	api.RegisterProductCatalogServer(s, handler)
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())
	// Reflection for tools like grpcurl.
	reflection.Register(s)

	return s
}

func shutdown(logger zerolog.Logger, httpServer *http.Server, grpcServer *grpc.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stoppedGrpc := make(chan struct{})
	go func() {
		defer close(stoppedGrpc)
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server graceful shutdown failed")
	}

	select {
	case <-stoppedGrpc:
	case <-shutdownCtx.Done():
		if grpcServer != nil {
			logger.Warn().Err(shutdownCtx.Err()).Msg("gRPC graceful shutdown timed out, forcing stop")
			grpcServer.Stop()
		}
	}
}
