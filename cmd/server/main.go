package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"firefly-live/internal/auth"
	"firefly-live/internal/bloom"
	"firefly-live/internal/broker"
	"firefly-live/internal/cache"
	"firefly-live/internal/config"
	"firefly-live/internal/danmu"
	"firefly-live/internal/db"
	"firefly-live/internal/dispatch"
	myMiddleware "firefly-live/internal/middleware"
	"firefly-live/internal/moment"
	"firefly-live/internal/registry"
	"firefly-live/internal/transport"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Platform layer: Postgres, Redis, RabbitMQ.
	database, err := db.NewDatabase(cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to Postgres")
	}
	if err := database.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	log.Info("connected to Postgres")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect to Redis")
	}
	log.Info("connected to Redis")

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer amqpConn.Close()
	log.Info("connected to RabbitMQ")

	// Core: cache-aside read path, registry, dispatcher.
	store := cache.NewRedis(redisClient)
	filter := bloom.New(store, cfg.BloomBits)
	danmuRepo := danmu.NewRepository(database.Conn)
	history := danmu.NewHistory(store, filter, danmuRepo, log)

	reg := registry.New(log)

	danmuProducer, err := broker.NewProducer(amqpConn, "danmus", log)
	if err != nil {
		log.WithError(err).Fatal("danmu producer setup failed")
	}
	momentProducer, err := broker.NewProducer(amqpConn, "moments", log)
	if err != nil {
		log.WithError(err).Fatal("moment producer setup failed")
	}

	dispatcher := dispatch.NewDispatcher(reg, danmuProducer, history, danmuRepo,
		dispatch.Options{RequeueUnknownSession: cfg.RequeueUnknownSession}, log)

	feeds := moment.NewFeedStore(store, log)
	momentRepo := moment.NewRepository(database.Conn)
	fanout := moment.NewFanout(feeds, momentRepo, log)
	momentService := moment.NewService(momentRepo, momentProducer, feeds)

	// Consumer groups, one per event class.
	danmuConsumer, err := broker.NewConsumer(amqpConn, broker.ConsumerConfig{
		Queue:          broker.QueueDanmus,
		RoutingKey:     broker.RouteDanmu,
		Workers:        cfg.DanmuWorkers,
		Prefetch:       cfg.Prefetch,
		RequeueOnError: true,
	}, dispatcher.HandleDanmuDelivery, log)
	if err != nil {
		log.WithError(err).Fatal("danmu consumer setup failed")
	}
	if err := danmuConsumer.Start(ctx); err != nil {
		log.WithError(err).Fatal("danmu consumer start failed")
	}
	defer danmuConsumer.Close()

	momentConsumer, err := broker.NewConsumer(amqpConn, broker.ConsumerConfig{
		Queue:          broker.QueueMoments,
		RoutingKey:     broker.RouteMoment,
		Workers:        cfg.MomentWorkers,
		Prefetch:       cfg.Prefetch,
		RequeueOnError: true,
	}, fanout.HandleDelivery, log)
	if err != nil {
		log.WithError(err).Fatal("moment consumer setup failed")
	}
	if err := momentConsumer.Start(ctx); err != nil {
		log.WithError(err).Fatal("moment consumer start failed")
	}
	defer momentConsumer.Close()

	go dispatch.NewHeartbeat(reg, cfg.HeartbeatInterval, log).Run(ctx)

	// HTTP surface.
	authService := auth.NewService(cfg.JWTSecret)
	wsHandler := transport.NewHandler(dispatcher, authService, log)
	danmuHandler := danmu.NewHandler(history)
	momentHandler := moment.NewHandler(momentService)
	authMiddleware := myMiddleware.NewAuthMiddleware(authService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// The handshake itself is public: invalid tokens degrade to guest.
	r.Get("/imserver", wsHandler.ServeWS)
	r.Get("/api/danmus", danmuHandler.GetHistory)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Require)
		r.Post("/api/user-moments", momentHandler.Post)
		r.Get("/api/user-subscribed-moments", momentHandler.Feed)
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.WithField("addr", cfg.ListenAddr).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server failed")
	}
}
