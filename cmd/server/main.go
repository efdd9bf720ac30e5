package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"dermalink-api/internal/blob"
	"dermalink-api/internal/cache"
	"dermalink-api/internal/config"
	"dermalink-api/internal/feeds"
	"dermalink-api/internal/grpcweb"
	"dermalink-api/internal/handler"
	"dermalink-api/internal/inference"
	"dermalink-api/internal/jobs"
	"dermalink-api/internal/middleware"
	"dermalink-api/internal/observability"
	"dermalink-api/internal/realtime"
	"dermalink-api/internal/rpc"
	"dermalink-api/internal/store"
	"dermalink-api/internal/textutil"
	"dermalink-api/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := observability.NewLogger(false)
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := observability.NewLogger(cfg.Dev())
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// database
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}
	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to postgres")
	st := store.New(pool)

	// redis: cache + realtime fan-out
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	hub := realtime.NewHub(logger)
	defer hub.Close()
	broker := realtime.NewBroker(rdb, hub, logger)

	h := handler.New(st, cfg.JWTSecret,
		handler.WithTokenTTL(cfg.AccessTTL, cfg.RefreshTTL),
		handler.WithCache(cache.New(rdb), cfg.CacheTTL),
		handler.WithPublisher(broker),
		handler.WithLogger(logger),
	)

	// grpc server
	rl := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	chain := middleware.Chain(
		middleware.Logging(logger),
		middleware.RateLimit(rl, rpc.OpenMethods()),
		middleware.Auth(cfg.JWTSecret, rpc.OpenMethods()),
	)
	srv := grpc.NewServer(grpc.UnaryInterceptor(chain))
	rpc.Register(srv, h)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}

	// http gateway
	blobs, err := blob.NewLocal(cfg.UploadDir, cfg.PublicBaseURL, cfg.UploadMaxBytes)
	if err != nil {
		return err
	}
	var classifier web.Classifier
	if cfg.InferenceURL != "" {
		var opts []inference.Option
		if cfg.InferenceLabels != "" {
			labels, err := inference.LoadLabels(cfg.InferenceLabels)
			if err != nil {
				return err
			}
			opts = append(opts, inference.WithLabels(labels))
		}
		classifier = inference.New(cfg.InferenceURL, cfg.InferenceRPS, opts...)
	} else {
		logger.Warn().Msg("INFERENCE_URL not set, classification disabled")
	}

	proxies, err := cfg.Proxies()
	if err != nil {
		return err
	}
	webSrv := web.New(web.Config{
		Secret:         cfg.JWTSecret,
		MaxUpload:      cfg.UploadMaxBytes,
		Log:            logger,
		Registry:       observability.InitRegistry(),
		TrustedProxies: proxies,
		Ready:          func(ctx context.Context) error { return errors.Join(st.Ping(ctx), rdb.Ping(ctx).Err()) },
		Bridge:         grpcweb.New(h, chain, logger).Handler(),
		Realtime:       http.HandlerFunc(hub.ServeWS),
		Blobs:          blobs,
		Classifier:     classifier,
		History:        h,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.WebPort,
		Handler:           webSrv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// background jobs
	importer := feeds.NewImporter(st, textutil.NewSanitizer(), logger)
	sched := jobs.New(st, broker, logger, jobs.WithImporter(importer))
	if err := sched.Start(cfg.SweepSchedule, cfg.FeedSchedule); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.GRPCPort).Msg("grpc listening")
		return srv.Serve(lis)
	})
	g.Go(func() error {
		logger.Info().Str("port", cfg.WebPort).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return broker.Run(gctx)
	})
	g.Go(func() error {
		rl.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sched.Stop(shutdownCtx)
		hub.Close()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
		srv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
