package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AnshRaj112/salvioris-chat/internal/config"
	"github.com/AnshRaj112/salvioris-chat/internal/database"
	"github.com/AnshRaj112/salvioris-chat/internal/handlers"
	"github.com/AnshRaj112/salvioris-chat/internal/logger"
	"github.com/AnshRaj112/salvioris-chat/internal/middleware"
	"github.com/AnshRaj112/salvioris-chat/internal/routes"
	"github.com/AnshRaj112/salvioris-chat/internal/services"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	zlog, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()
	if envErr != nil {
		zlog.Info("no .env file found")
	}

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	if err := database.ConnectPostgres(cfg.PostgresURI, zlog); err != nil {
		return err
	}
	defer database.DisconnectPostgres()

	if err := database.ConnectRedis(cfg.RedisURI, zlog); err != nil {
		return err
	}
	defer database.DisconnectRedis()

	if err := database.Connect(cfg.MongoURI, zlog); err != nil {
		return err
	}
	defer database.Disconnect()

	messageStore := services.NewMongoMessageStore(database.DB)
	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := messageStore.EnsureIndexes(indexCtx); err != nil {
		zlog.Warn("failed to ensure MongoDB chat indexes", zap.Error(err))
	}
	indexCancel()

	// Redis carries the broadcasts the gateways consume; Kafka, when configured,
	// mirrors them for downstream consumers.
	var publisher services.Publisher = services.NewRedisPublisher(database.RedisClient)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := services.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPub.Close()
		publisher = services.NewMirroredPublisher(zlog, publisher, kafkaPub)
		zlog.Info("kafka event mirror enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	chats := services.NewPostgresChatStore(database.PostgresDB)
	users := services.NewPostgresDirectory(database.PostgresDB)
	deps := services.Deps{
		Chats:     chats,
		Messages:  messageStore,
		Invites:   services.NewPostgresInviteStore(database.PostgresDB),
		Users:     users,
		Authz:     chats,
		Publisher: publisher,
		Recent:    services.NewRecentCache(database.RedisClient, zlog),
		Log:       zlog,
	}

	hub := services.NewHub(zlog)
	h := &handlers.Handler{
		Sessions:    services.NewSessionStore(database.RedisClient),
		Users:       users,
		Messages:    services.NewMessageService(deps),
		Typing:      services.NewTypingService(deps),
		Receipts:    services.NewReceiptService(deps),
		Members:     services.NewMemberService(deps),
		Invites:     services.NewInviteService(deps),
		Presence:    services.NewPresenceTracker(services.NewRedisPresenceCache(database.RedisClient), publisher, zlog, cfg.PresenceTTL),
		ChannelAuth: services.NewChannelAuthorizer(chats, zlog),
		Tokens:      services.NewChannelTokens(cfg.ChannelAuthSecret, cfg.ChannelTokenTTL),
		Hub:         hub,
		Log:         zlog,
	}

	if cfg.UploadsEnabled() {
		attachments, err := services.NewAttachmentService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		if err != nil {
			zlog.Warn("cloudinary unavailable, uploads disabled", zap.Error(err))
		} else {
			h.Attachments = attachments
		}
	} else {
		zlog.Warn("cloudinary credentials not found, uploads disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
		zlog.Info("production security enabled")
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	routes.SetupRoutes(r, h, routes.Limits{
		Commands: middleware.CommandRateLimit(cfg.CommandRPS, cfg.CommandBurst, handlers.RateKey),
		Connects: middleware.ConnectRateLimit(database.RedisClient, cfg.WSConnectLimit, cfg.WSConnectWindow),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := services.NewRedisRelay(database.RedisClient, hub, zlog).Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		zlog.Info("chat engine listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		zlog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
