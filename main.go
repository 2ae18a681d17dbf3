package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"home-services-server/config"
	"home-services-server/database"
	"home-services-server/events"
	"home-services-server/jobs"
	"home-services-server/logger"
	"home-services-server/media"
	"home-services-server/middleware"
	"home-services-server/models"
	"home-services-server/repository"
	"home-services-server/routes"
	"home-services-server/seed"
	"home-services-server/services"
	ws "home-services-server/websocket"
)

const notifyQueueSize = 1024

func main() {
	// A missing .env is fine; the process environment still applies.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(os.Getenv("APP_ENV")).Fatal("invalid configuration", zap.Error(err))
	}

	log := logger.New(cfg.Server.Env)
	defer log.Sync()
	if envErr != nil {
		log.Info("no .env file found, using system environment variables")
	}

	if cfg.Server.GinMode == gin.ReleaseMode || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Initialize(cfg.Database, cfg.IsProduction(), log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	store := repository.NewStore(db)
	if cfg.Server.SeedCatalog {
		if _, err := seed.Catalog(ctx, store.Services, log.Named("seed")); err != nil {
			log.Error("catalog seed failed", zap.Error(err))
		}
	}

	// Realtime: the hub is the local sink. With Redis configured, events go through the
	// relay so every replica's clients see them.
	var bookingSvc *services.BookingService
	hub := ws.NewHub(ws.Options{
		AllowedOrigins: splitOrigins(cfg.Server.ClientURL),
		WatchBooking: func(ctx context.Context, userID uint, role models.UserRole, bookingID uint) bool {
			_, err := bookingSvc.Get(ctx, services.Actor{ID: userID, Role: role}, bookingID)
			return err == nil
		},
	}, log.Named("websocket"))
	go hub.Run(ctx)

	var realtime events.Notifier = hub
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, realtime events stay on this instance", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		relay := events.NewRedisRelay(redisClient, cfg.Redis.Channel, hub, log.Named("relay"))
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("redis relay stopped", zap.Error(err))
			}
		}()
		realtime = startAsync(ctx, "redis", relay, log)
	}

	notifier := events.Fanout{realtime}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log.Named("amqp"))
		if err != nil {
			log.Warn("rabbitmq unavailable, events will not be published", zap.Error(err))
		} else {
			defer publisher.Close()
			notifier = append(notifier, startAsync(ctx, "amqp", publisher, log))
		}
	}

	var uploader services.ImageUploader
	if cfg.CloudinaryEnabled() {
		cld, err := media.NewCloudinaryUploader(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder, log.Named("media"))
		if err != nil {
			log.Warn("cloudinary disabled", zap.Error(err))
		} else {
			uploader = cld
		}
	} else {
		log.Info("cloudinary not configured, image uploads disabled")
	}

	tokens := services.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	bookingSvc = services.NewBookingService(store, notifier, log.Named("bookings"))
	reviewSvc := services.NewReviewService(store, log.Named("reviews"))
	limiter := middleware.NewRateLimiter()

	router := routes.NewRouter(routes.Deps{
		Auth:     services.NewAuthService(store, tokens, log.Named("auth")),
		Bookings: bookingSvc,
		Invoices: services.NewInvoiceService(store, notifier, log.Named("invoices"), services.BillingDefaults{
			Currency: cfg.Billing.DefaultCurrency,
			TaxPct:   cfg.Billing.DefaultTaxPct,
		}),
		Messages:       services.NewMessageService(store, notifier, log.Named("messages")),
		Reviews:        reviewSvc,
		Catalog:        services.NewCatalogService(store, uploader, log.Named("catalog")),
		Providers:      services.NewProviderService(store, log.Named("providers")),
		Hub:            hub,
		Limiter:        limiter,
		AllowedOrigins: splitOrigins(cfg.Server.ClientURL),
		Log:            log,
	})

	scheduler := jobs.NewScheduler(log.Named("jobs"))
	if err := jobs.RegisterDefaults(scheduler, cfg.Jobs.RatingSchedule, reviewSvc, limiter); err != nil {
		log.Fatal("failed to schedule jobs", zap.Error(err))
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("server stopped")
}

// startAsync moves a broker-backed notifier off the request goroutine.
func startAsync(ctx context.Context, name string, next events.Notifier, log *zap.Logger) *events.Async {
	a := events.NewAsync(name, next, notifyQueueSize, log.Named(name))
	go a.Run(ctx)
	return a
}

// splitOrigins turns a comma-separated CLIENT_URL into the allowed origin list.
func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}
