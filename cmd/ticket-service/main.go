package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-ticket-lifecycle/internal/analytics"
	analytics_api "ms-ticket-lifecycle/internal/analytics/api"
	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/cardano"
	"ms-ticket-lifecycle/internal/config"
	"ms-ticket-lifecycle/internal/database"
	"ms-ticket-lifecycle/internal/database/migrations"
	"ms-ticket-lifecycle/internal/kafka"
	"ms-ticket-lifecycle/internal/locking"
	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/midnight"
	"ms-ticket-lifecycle/internal/monitoring"
	"ms-ticket-lifecycle/internal/security"
	"ms-ticket-lifecycle/internal/tickets/db"
	"ms-ticket-lifecycle/internal/tickets/qr"
	tickets "ms-ticket-lifecycle/internal/tickets/service"
	"ms-ticket-lifecycle/internal/tickets/ticket_api"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir)
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	log.Info("APP", "Starting Ticket Lifecycle Service initialization")
	for _, w := range cfg.Warnings() {
		log.Warn("CONFIG", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()
	store := &db.DB{Bun: bunDB}
	prepareSchema(ctx, cfg.Database, bunDB, store, log)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = database.ConnectRedis(ctx, cfg.Redis.Addr, log)
		if err != nil {
			log.Fatal("DATABASE", err.Error())
		}
		defer redisClient.Close()
	}

	metrics := monitoring.NewMetrics()

	organizerKey, err := cardano.NewOrganizerKey(cfg.Cardano.OrganizerSeed)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid organizer signing seed: %v", err))
	}
	if cfg.Cardano.OrganizerSeed == "" {
		log.Warn("CONFIG", "ORGANIZER_SIGNING_SEED not set, using an ephemeral organizer key")
	}
	log.Info("CARDANO", fmt.Sprintf("Organizer key hash %s", organizerKey.PubKeyHash()))

	ledger := buildLedger(cfg.Cardano, organizerKey, log)
	privateState := buildPrivateState(cfg.Midnight, redisClient, ledger, organizerKey, log)

	service := tickets.NewTicketService(store, privateState, ledger, organizerKey, log)
	service.Metrics = metrics
	service.QR = qr.NewQRGenerator(cfg.QR.SecretKey)
	if redisClient != nil {
		service.Locks = locking.NewRedisLocker(redisClient, cfg.Redis.LockTTL)
		log.Info("REDIS", "Ticket locks shared through Redis")
	} else {
		service.Locks = locking.NewMemoryLocker()
	}

	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topic, cfg.Kafka.ConfirmationsTopic}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer producer.Close()
		service.Events = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConfirmationsTopic, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx, service.ConfirmLedger); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Ledger confirmation consumer stopped: %v", err))
			}
		}()
	} else {
		service.Events = kafka.NoopPublisher{}
		log.Info("KAFKA", "Kafka disabled, lifecycle events are not published")
	}

	verifier, err := buildVerifier(ctx, cfg.Auth, redisClient, log)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	var limiter *security.RateLimiter
	if cfg.RateLimit.Enabled {
		var counter security.Counter = security.NewMemoryCounter()
		if redisClient != nil {
			counter = security.NewRedisCounter(redisClient)
		}
		limiter = security.NewRateLimiter(counter, cfg.RateLimit.Requests, cfg.RateLimit.Window, log, metrics)
	}

	router := ticket_api.NewRouter(ticket_api.NewHandler(service, log), ticket_api.RouterOptions{
		Verifier:  verifier,
		Analytics: analytics_api.NewHandler(analytics.NewService(bunDB), log),
		Limiter:   limiter,
		Metrics:   metrics,
		Logger:    log,

		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Ticket Lifecycle Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Ticket Lifecycle Service shutdown complete")
	}
}

// prepareSchema runs the embedded migrations on Postgres and creates the
// tables directly on SQLite.
func prepareSchema(ctx context.Context, cfg config.DatabaseConfig, bunDB *bun.DB, store *db.DB, log *logger.Logger) {
	if cfg.Driver != database.DriverPostgres {
		if err := store.CreateTables(ctx); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to create tables: %v", err))
		}
		return
	}

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.MigrationsDir, AutoMigrate: true}, log)
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("MIGRATION", fmt.Sprintf("Failed to run migrations: %v", err))
	}
}

func buildLedger(cfg config.CardanoConfig, key *cardano.OrganizerKey, log *logger.Logger) cardano.LedgerClient {
	if cfg.MockMode {
		log.Info("CARDANO", "Using mock ledger")
		return cardano.NewMockLedger(cfg.PolicyScript, log, key)
	}
	client, err := cardano.NewBlockfrostClient(cfg.BlockfrostURL, cfg.Network, cfg.BlockfrostProjectID, key, cfg.RequestTimeout, log)
	if err != nil {
		log.Fatal("CARDANO", fmt.Sprintf("Failed to configure Blockfrost client: %v", err))
	}
	log.Info("CARDANO", fmt.Sprintf("Using Blockfrost on %s, funding address %s, policy %s", cfg.Network, client.Address(), client.GetPolicyId()))
	return client
}

// buildPrivateState returns the in-process contract in mock mode, backed by
// Redis when it is available, and the remote contract client otherwise.
func buildPrivateState(cfg config.MidnightConfig, redisClient *redis.Client, ledger cardano.LedgerClient, key *cardano.OrganizerKey, log *logger.Logger) midnight.PrivateStateClient {
	if !cfg.MockMode {
		log.Info("MIDNIGHT", fmt.Sprintf("Using private-state service at %s", cfg.APIURL))
		return midnight.NewHTTPClient(cfg.APIURL, cfg.APIKey, cfg.RequestTimeout, log)
	}

	var stateStore midnight.StateStore = midnight.NewMemoryStateStore()
	if redisClient != nil {
		stateStore = midnight.NewRedisStateStore(redisClient)
		log.Info("MIDNIGHT", "Private state stored in Redis")
	}
	pubKeyHash := key.PubKeyHash()
	contract := midnight.NewContract(stateStore, func(sig, message string) bool {
		return ledger.VerifyOrganizerSignature(sig, message, pubKeyHash)
	}, log)
	contract.ApprovalLifetime = cfg.ApprovalLifetime
	log.Info("MIDNIGHT", "Using in-process private-state contract")
	return contract
}

func buildVerifier(ctx context.Context, cfg config.AuthConfig, redisClient *redis.Client, log *logger.Logger) (auth.Verifier, error) {
	var verifier auth.Verifier
	if cfg.OIDCIssuer != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, fmt.Errorf("failed to configure OIDC verifier: %w", err)
		}
		verifier = oidcVerifier
		log.Info("AUTH", fmt.Sprintf("Verifying tokens against %s", cfg.OIDCIssuer))
	} else {
		verifier = auth.NewHMACVerifier([]byte(cfg.JWTSecret))
		log.Info("AUTH", "Verifying HS256 tokens with the shared secret")
	}

	if redisClient != nil {
		return auth.NewCachingVerifier(verifier, redisClient, log), nil
	}
	return verifier, nil
}
