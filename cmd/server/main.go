package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/handlers"
	mW "github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/scheduler"
	"github.com/earnhub/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

func main() {
	config.Bootstrap()
	viper.SetDefault("payout.debtor_bic", "EARNPKKA")
	viper.SetDefault("payout.debtor_name", "EarnHub Payouts")
	viper.BindEnv("payout.debtor_bic", "PAYOUT_DEBTOR_BIC")
	viper.BindEnv("payout.debtor_name", "PAYOUT_DEBTOR_NAME")
	serverConfig := config.LoadServerConfig()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	store, err := database.OpenStore(startupCtx)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	redisClient, err := database.InitRedis(startupCtx)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	settings, err := config.NewProvider(viper.GetString("settings.file"))
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	log.Printf("[CONFIG] Settings version %d loaded", settings.Current().Version)

	// Initialize services
	auditLogger := audit.NewLogger()
	hasher := services.NewArgon2HasherFromConfig()
	ledgerService := services.NewLedgerService(store, settings, auditLogger)
	iso20022Service := services.NewISO20022Service(viper.GetString("payout.debtor_bic"), viper.GetString("payout.debtor_name"))
	payoutQueue := services.NewRedisPayoutQueue(redisClient, iso20022Service, settings)

	accountService := services.NewAccountService(store, ledgerService, hasher, auditLogger)
	authService := services.NewAuthService(store, hasher, redisClient)
	transactionService := services.NewTransactionService(store, ledgerService, hasher, payoutQueue, auditLogger)
	commissionService := services.NewCommissionService(store, ledgerService, settings, auditLogger)
	rankService := services.NewRankService(store, ledgerService, commissionService, settings, auditLogger)
	salaryService := services.NewSalaryService(store, ledgerService, settings, redisClient, auditLogger)
	bankChangeService := services.NewBankChangeService(store, ledgerService, services.NewBankDirectory(), auditLogger)
	taskService := services.NewTaskService(store, ledgerService, commissionService, settings, redisClient, auditLogger)
	referralService := services.NewReferralService(store)
	qrService := services.NewQRService(store, redisClient, settings)

	api := &handlers.Handlers{
		Accounts:     handlers.NewAccountHandler(accountService, authService, ledgerService, qrService),
		Transactions: handlers.NewTransactionHandler(transactionService, settings),
		Ranks:        handlers.NewRankHandler(rankService),
		Referrals:    handlers.NewReferralHandler(referralService, commissionService, salaryService),
		QR:           handlers.NewQRHandler(qrService),
		Banks:        handlers.NewBankHandler(bankChangeService),
		Tasks:        handlers.NewTaskHandler(taskService),
		Admin:        handlers.NewAdminHandler(accountService, ledgerService, commissionService, salaryService),
	}

	cronScheduler := scheduler.New(salaryService)
	if err := cronScheduler.Start(settings.Current().SalarySchedule); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":          "healthy",
			"settingsVersion": settings.Current().Version,
		})
	})

	// Swagger UI over the hand-written OpenAPI document
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/openapi.yaml"),
	))
	r.Handle("/docs/*", http.StripPrefix("/docs/", mW.StaticFileServer("./api")))

	api.Mount(r, authService)

	server := &http.Server{
		Addr:         ":" + serverConfig.Port,
		Handler:      r,
		ReadTimeout:  serverConfig.ReadTimeout,
		WriteTimeout: serverConfig.WriteTimeout,
		IdleTimeout:  serverConfig.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", serverConfig.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	cronScheduler.Stop(ctx)

	log.Println("Server stopped")
}
