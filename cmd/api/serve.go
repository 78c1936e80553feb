package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"grantsbackend/internal/config"
	"grantsbackend/internal/database"
	"grantsbackend/internal/events"
	"grantsbackend/internal/handler"
	"grantsbackend/internal/middleware"
	"grantsbackend/internal/repository"
	"grantsbackend/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the lifecycle event feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(cmd, v)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().String("port", "", "listen port (PORT)")
	cmd.Flags().String("redis-url", "", "redis URL for cross-instance events (REDIS_URL)")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("redis_url", cmd.Flags().Lookup("redis-url"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := database.NewConnection(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	hub := events.NewHub(log)
	go hub.Run(ctx)

	publisher, closeEvents, err := eventPublisher(ctx, cfg, hub, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	// Repository -> Service -> Handler
	txManager := repository.NewTransactionManager(db, cfg.TxTimeout)
	budgetRepo := repository.NewBudgetRepository(db)
	contractRepo := repository.NewContractRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	ledger := repository.NewIdempotencyRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditService := service.NewAuditService(auditRepo)
	budgetService := service.NewBudgetSSOTService(txManager, budgetRepo, partnerRepo, templateRepo, ledger, auditService, log,
		service.WithPublisher(publisher))
	contractService := service.NewContractSSOTService(txManager, contractRepo, budgetRepo, templateRepo, ledger, auditService, log,
		service.WithPublisher(publisher))
	partnerService := service.NewPartnerService(partnerRepo, txManager)
	templateService := service.NewTemplateService(templateRepo, txManager)
	roleService := service.NewRoleService(roleRepo, txManager)

	middleware.InitAuth(db, []byte(cfg.JWTSecret))

	router := newRouter(cfg, log, db, hub)
	api := router.Group("")
	handler.NewBudgetHandler(budgetService).RegisterRoutes(api)
	handler.NewContractHandler(contractService).RegisterRoutes(api)
	handler.NewAuditHandler(auditService).RegisterRoutes(api)
	handler.NewPartnerHandler(partnerService).RegisterRoutes(api)
	handler.NewTemplateHandler(templateService).RegisterRoutes(api)
	handler.NewRoleHandler(roleService).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// eventPublisher returns the hub itself for a single instance, or a redis
// publisher plus a relay into the hub when REDIS_URL is set.
func eventPublisher(ctx context.Context, cfg *config.Config, hub *events.Hub, log *zap.Logger) (events.Publisher, func(), error) {
	if cfg.RedisURL == "" {
		return hub, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis unreachable: %w", err)
	}

	relay, err := events.NewRelay(ctx, rdb, cfg.EventsChannel, log)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	go relay.Run(ctx, hub)

	log.Info("lifecycle events fan out through redis", zap.String("channel", cfg.EventsChannel))
	return events.NewRedisPublisher(rdb, cfg.EventsChannel), func() { _ = rdb.Close() }, nil
}

func newRouter(cfg *config.Config, log *zap.Logger, db *gorm.DB, hub *events.Hub) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.RequestMeta())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "Idempotency-Key", "X-Request-Hash"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": hub.ClientCount()})
	})

	secret := []byte(cfg.JWTSecret)
	router.GET("/ws", func(c *gin.Context) {
		events.ServeWs(hub, c, secret)
	})
	return router
}
