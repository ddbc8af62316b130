package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pos-tenancy/internal/ai"
	"go-pos-tenancy/internal/auth"
	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/events"
	"go-pos-tenancy/internal/handlers"
	"go-pos-tenancy/internal/logger"
	"go-pos-tenancy/internal/metrics"
	"go-pos-tenancy/internal/middleware"
	"go-pos-tenancy/internal/provision"
	"go-pos-tenancy/internal/tenancy"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: "go-pos-tenancy",
	}); err != nil {
		panic(err)
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting server", cfg.LogFields()...)

	metrics.Register()
	auth.Configure(&cfg.JWT)

	master, err := database.Connect(&cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to connect to master database", zap.Error(err))
	}

	driver, err := provision.NewDriver(cfg)
	if err != nil {
		log.Fatal("Failed to create provisioning driver", zap.Error(err))
	}
	registry := tenant.NewRegistry(master)
	provisioner := provision.New(cfg, master, driver, registry, log)
	defer provisioner.Close()

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, 4)
		if err != nil {
			log.Warn("Event broker unavailable, events disabled", zap.Error(err))
		} else {
			publisher = pub
		}
	}
	defer publisher.Close()

	switcher := tenancy.NewSwitcher(master)
	tn := &middleware.Tenancy{
		Resolver:    tenant.NewResolver(registry, cfg.Tenancy.BaseDomain, cfg.Tenancy.ReservedSubdomains),
		Guard:       tenant.NewGuard(),
		Provisioner: provisioner,
		Switcher:    switcher,
		Debug:       cfg.Server.Debug,
	}

	h := handlers.New(switcher, registry, tenant.NewLifecycle(registry, provisioner, log), ai.NewAgent(&cfg.AI), publisher)
	h.AllowRegistration = cfg.Server.AllowRegistration
	h.SecureCookies = cfg.IsProduction()
	h.WebhookSecret = cfg.Server.WebhookSecret
	if h.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET is not set, payment webhooks will be rejected")
	}
	if h.AllowRegistration {
		log.Warn("Registration route is OPEN. Disable this in production!")
	} else {
		log.Info("Registration route is disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(logger.Middleware())
	r.Use(metrics.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization",
			tenant.HeaderSlug, tenant.HeaderID, logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", logger.RequestIDHeader, middleware.HeaderTenantCode, middleware.HeaderTenantDatabase},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	h.Routes(r, tn)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Info("Server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
}
