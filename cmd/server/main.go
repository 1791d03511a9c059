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

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/config"
	"github.com/dexa-wallet/backend/internal/database"
	"github.com/dexa-wallet/backend/internal/handlers"
	"github.com/dexa-wallet/backend/internal/hsm"
	mW "github.com/dexa-wallet/backend/internal/middleware"
	"github.com/dexa-wallet/backend/internal/notification"
	"github.com/dexa-wallet/backend/internal/repository"
	"github.com/dexa-wallet/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

func main() {
	config.Load(".env")

	ctx := context.Background()

	db, err := database.InitDB(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	audit := hsm.NewAuditLogger()
	keyVault, err := hsm.InitHSM(hsm.Config{
		MasterKey:   viper.GetString("hsm.master_key"),
		AuditLogger: audit,
		Salt:        []byte(viper.GetString("hsm.salt")),
	})
	if err != nil {
		log.Fatalf("Failed to initialize HSM: %v", err)
	}

	chainCfg := config.LoadChainConfig()
	chainClient, err := chain.Dial(ctx, chain.Config{
		RPCURL:         chainCfg.RPCURL,
		ChainID:        chainCfg.ChainID,
		ReceiptTimeout: chainCfg.ReceiptTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to chain: %v", err)
	}
	defer chainClient.Close()

	notifier := notification.NewAsync(newNotifier(config.LoadTwilioConfig()), 15*time.Second)
	defer notifier.Wait()

	ussdCfg := config.LoadUSSDConfig()
	store := repository.NewPostgresStore(db)
	pins := services.NewPinPolicy(keyVault, store, audit, ussdCfg.PinMaxRetries, ussdCfg.PinLockDuration)
	transactor := services.NewTransactor(chainClient, store, notifier, audit, chainCfg.NativeSymbol)

	locker, cache, pending := sessionBackends(redisClient, ussdCfg, chainCfg.ReceiptTimeout)

	ussdService := services.NewUSSDService(services.USSDDeps{
		Store:      store,
		Chain:      chainClient,
		HSM:        keyVault,
		Pins:       pins,
		Transactor: transactor,
		Audit:      audit,
		Locker:     locker,
		Cache:      cache,
		Config:     ussdCfg,
	})
	walletService := services.NewWalletService(store, chainClient, keyVault, pins, transactor, chainCfg.FunderPrivateKey, ussdCfg)
	messageService := services.NewMessageService(walletService, pending, locker, ussdCfg.ConfirmTimeout, ussdCfg.HistoryLimit)
	qrService := services.NewQRService(walletService, redisClient)
	authService := services.NewAuthService(redisClient)

	ussdHandler := handlers.NewUSSDHandler(ussdService)
	messageHandler := handlers.NewMessageHandler(messageService)
	walletHandler := handlers.NewWalletHandler(walletService)
	qrHandler := handlers.NewQRHandler(qrService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	))
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yaml")
	})

	// Gateway callbacks
	r.Post("/ussd", ussdHandler.Callback)
	r.With(mW.TwilioSignature(viper.GetString("twilio.auth_token"), viper.GetString("twilio.webhook_url"))).
		Post("/messages/inbound", messageHandler.Inbound)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authService.Login)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/auth/logout", authService.Logout)
			r.Get("/wallets/{phoneNumber}/balance", walletHandler.GetBalance)
			r.Get("/wallets/{phoneNumber}/transactions", walletHandler.ListTransactions)
			r.Get("/wallets/{phoneNumber}/qr", qrHandler.GetAddressQR)
			r.Post("/wallets/fund", walletHandler.Fund)
			r.Post("/transfers", walletHandler.Transfer)
		})
	})

	port := viper.GetString("server.port")

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func newNotifier(cfg *config.TwilioConfig) notification.Notifier {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		log.Println("Twilio credentials not set, outbound messages will be logged only")
		return notification.NewLoggerNotifier()
	}
	return notification.NewTwilioNotifier(cfg.AccountSID, cfg.AuthToken, cfg.SMSFrom, cfg.WhatsAppFrom)
}

// sessionBackends picks Redis-backed locking, caching and pending
// confirmations when Redis is reachable. The lock lease always outlives a
// full submission. Without Redis locking is per-process and END responses
// are not cached.
func sessionBackends(rdb *redis.Client, cfg *config.USSDConfig, receiptTimeout time.Duration) (services.SessionLocker, services.ResponseCache, services.PendingStore) {
	if rdb == nil {
		return services.NewMemoryLocker(cfg.SessionLockWait), nil, services.NewMemoryPendingStore()
	}
	lockTTL := cfg.LockTTL(receiptTimeout)
	if lockTTL != cfg.SessionLockTTL {
		log.Printf("Session lock TTL raised from %s to %s to cover the receipt wait", cfg.SessionLockTTL, lockTTL)
	}
	return services.NewRedisLocker(rdb, lockTTL, cfg.SessionLockWait),
		services.NewRedisResponseCache(rdb, cfg.ResponseCacheTTL),
		services.NewRedisPendingStore(rdb)
}
