package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/cache"
	"github.com/fjod/go_cart/cart-pricing/internal/config"
	cartgrpc "github.com/fjod/go_cart/cart-pricing/internal/grpc"
	h "github.com/fjod/go_cart/cart-pricing/internal/http"
	"github.com/fjod/go_cart/cart-pricing/internal/poller"
	"github.com/fjod/go_cart/cart-pricing/internal/publisher"
	"github.com/fjod/go_cart/cart-pricing/internal/repository"
	s "github.com/fjod/go_cart/cart-pricing/internal/service"
	"github.com/fjod/go_cart/cart-pricing/internal/snapshot"
	"github.com/fjod/go_cart/cart-pricing/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer lg.Sync()
	zap.ReplaceGlobals(lg)

	if err := run(cfg, lg); err != nil {
		lg.Fatal("service stopped with error", zap.Error(err))
	}
	lg.Info("service stopped")
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	lg.Info("database ready", zap.String("driver", cfg.DBDriver), zap.String("migrations", cfg.MigrationsDir))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// the breaker keeps requests flowing while Redis is down
		lg.Warn("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cartCache := cache.NewBreakerCache(cache.NewRedisCache(redisClient), lg)

	var opts []s.Option
	if cfg.MongoURI != "" {
		mongoDB, err := snapshot.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoDB.Client().Disconnect(ctx); err != nil {
				lg.Warn("mongo disconnect failed", zap.Error(err))
			}
		}()

		store := snapshot.NewMongoStore(mongoDB)
		if err := store.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("failed to create snapshot indexes: %w", err)
		}
		opts = append(opts, s.WithSnapshots(store))
		lg.Info("cart snapshots enabled", zap.String("database", cfg.MongoDBName))
	}

	service := s.NewCartService(repo, cartCache, lg, opts...)

	httpServer := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.NewRouter(h.NewCartHandler(service, cfg.RequestTimeout, lg), lg, h.RouterConfig{
			RequestTimeout: cfg.RequestTimeout,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := cartgrpc.NewServer(service, lg)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return grpcServer.Serve(lis)
	})

	if len(cfg.KafkaBrokers) > 0 {
		outbox := publisher.NewOutboxPoller(repo, lg, cfg.OutboxInterval, cfg.EventsTopic, cfg.KafkaBrokers...)
		g.Go(func() error {
			defer outbox.Close()
			outbox.Run(gctx)
			return nil
		})

		checkout := poller.NewPoller(service, lg, cfg.CheckoutTopic, cfg.ConsumerGroup, cfg.KafkaBrokers...)
		g.Go(func() error {
			defer checkout.Close()
			checkout.Run(gctx)
			return nil
		})
		lg.Info("kafka enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		lg.Warn("KAFKA_BROKERS not set, outbox events stay unpublished")
	}

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openRepository(cfg *config.Config) (*repository.Repository, error) {
	if cfg.DBDriver == config.DriverPostgres {
		return repository.NewPostgresRepository(&repository.Credentials{
			Host:              cfg.Postgres.Host,
			Port:              cfg.Postgres.Port,
			User:              cfg.Postgres.User,
			Password:          cfg.Postgres.Password,
			DBName:            cfg.Postgres.DBName,
			MigrationsDirPath: cfg.MigrationsDir,
		})
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	repo, err := repository.NewSQLiteRepository(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(cfg.MigrationsDir); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}
