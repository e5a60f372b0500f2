package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pos-ledger/internal/accounts"
	"go-pos-ledger/internal/ai"
	"go-pos-ledger/internal/auth"
	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/database"
	"go-pos-ledger/internal/events"
	"go-pos-ledger/internal/handlers"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/logging"
	"go-pos-ledger/internal/middleware"
	"go-pos-ledger/internal/reports"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}

	bus := events.NewBus(64)
	led := ledger.New(db,
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithPublisher(bus),
		ledger.WithCancelWindow(cfg.CancelWindow),
		ledger.WithDefaultThreshold(cfg.LowStockThreshold),
	)
	rep, err := reports.New(db, cfg.Database.Driver,
		reports.WithLocation(cfg.Location),
		reports.WithLogger(logger.Named("reports")),
	)
	if err != nil {
		return err
	}
	acc := accounts.New(db, accounts.WithLogger(logger.Named("accounts")))
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set; /api/ask will answer 503")
	}
	agent := ai.NewAgent(cfg.GeminiAPIKey, cfg.GeminiModel, led, rep, cfg.Location, logger.Named("ai"))

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.New(handlers.Deps{
		Ledger:            led,
		Reports:           rep,
		Accounts:          acc,
		Tokens:            auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Events:            bus,
		Assistant:         agent,
		Log:               logger.Named("http"),
		Location:          cfg.Location,
		AllowRegistration: cfg.AllowRegistration,
	}).Routes(r)

	// Serve the React build; unknown paths fall back to index.html for client routing.
	r.Static("/assets", "./web/assets")
	r.StaticFile("/vite.svg", "./web/vite.svg")
	r.NoRoute(func(c *gin.Context) {
		c.File("./web/index.html")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end when the process is asked to stop.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("url", cfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
