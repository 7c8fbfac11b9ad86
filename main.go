package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"psyconsult-chat/internal/api"
	"psyconsult-chat/internal/chat"
	"psyconsult-chat/internal/config"
	"psyconsult-chat/internal/events"
	"psyconsult-chat/internal/logger"
	"psyconsult-chat/internal/middleware"
	"psyconsult-chat/internal/models"
	"psyconsult-chat/internal/routes"
	"psyconsult-chat/internal/session"
)

func main() {
	// Load environment variables; a missing .env file is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	zlog := logger.New(cfg.LogFilePath, cfg.IsProduction())
	defer func() { _ = zlog.Sync() }()

	store, err := sessionStore(cfg, cfg.SessionTTL)
	if err != nil {
		zlog.Fatal("session store", zap.Error(err))
	}
	sessions := session.NewManager(store, cfg.JWTSecret, cfg.SessionTTL, zlog)

	bus := events.NewBus(zlog)
	defer bus.Close()

	backend := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, zlog)
	contactsCache := cache.New(cfg.ContactsCacheTTL, 2*cfg.ContactsCacheTTL)
	workspaces := chat.NewRegistry(cfg.WorkspaceTTL, func(s *session.Session) *chat.Workspace {
		return chat.NewWorkspace(backend.WithToken(s.Token), s, chat.Options{
			Origin:        cfg.AssetOrigin(),
			ContactsCache: contactsCache,
			Bus:           bus,
			PollInterval:  cfg.PollInterval,
			Logger:        zlog,
		})
	}, zlog)
	defer workspaces.Close()
	// Logout closes the workspace, ends its streams and forgets the user's
	// cached contacts.
	sessions.OnTeardown(func(s *session.Session) { workspaces.Drop(s.ID) })

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(zlog))

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Dependencies{
		Sessions:       sessions,
		Workspaces:     workspaces,
		Bus:            bus,
		OriginPatterns: cfg.OriginPatterns(),
		Logger:         zlog,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		zlog.Info("server running", zap.String("port", cfg.Port), zap.String("api_base_url", cfg.APIBaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown", zap.Error(err))
	}
	zlog.Info("server stopped")
}

func sessionStore(cfg *config.Config, ttl time.Duration) (session.Store, error) {
	if cfg.SessionStore != "mysql" {
		return session.NewMemoryStore(ttl), nil
	}
	db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return session.NewGormStore(db), nil
}
