package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/Merry-360-x/merry-moments-sub004/internal/availability"
	"github.com/Merry-360-x/merry-moments-sub004/internal/booking"
	bookingapi "github.com/Merry-360-x/merry-moments-sub004/internal/booking/api"
	bookingdb "github.com/Merry-360-x/merry-moments-sub004/internal/booking/db"
	"github.com/Merry-360-x/merry-moments-sub004/internal/config"
	"github.com/Merry-360-x/merry-moments-sub004/internal/database"
	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/kafka"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/payment/storage"
	"github.com/Merry-360-x/merry-moments-sub004/internal/payout"
	payoutapi "github.com/Merry-360-x/merry-moments-sub004/internal/payout/api"
	"github.com/Merry-360-x/merry-moments-sub004/internal/reconcile"
	reconcileapi "github.com/Merry-360-x/merry-moments-sub004/internal/reconcile/api"
	reconcileredis "github.com/Merry-360-x/merry-moments-sub004/internal/reconcile/redis"
	"github.com/Merry-360-x/merry-moments-sub004/internal/refund"
)

func main() {
	// Missing .env is fine in containers where the orchestrator sets env.
	_ = godotenv.Load()

	log := logger.NewLogger()
	defer log.Close()

	log.Info("STARTUP", "Starting booking payment engine")

	cfg := config.Load()

	if os.Getenv("RUN_MIGRATIONS") != "false" {
		if err := database.RunMigrations(cfg.Database.DSN, "migrations", log); err != nil {
			log.Warn("STARTUP", "Migrations failed, continuing with existing schema: "+err.Error())
		}
	}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("STARTUP", "Failed to open PostgreSQL: "+err.Error())
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := pingWithRetry(sqldb, 5, log); err != nil {
		log.Fatal("STARTUP", "PostgreSQL unreachable: "+err.Error())
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	paymentStore, err := storage.NewPostgreSQLStoreWithDB(sqldb, log)
	if err != nil {
		log.Fatal("STARTUP", "Failed to initialize payment storage: "+err.Error())
	}

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("STARTUP", "Redis unreachable at "+cfg.Redis.Addr+": "+err.Error())
	}
	defer redisClient.Close()
	log.Info("STARTUP", "Redis connected")

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka, log); err != nil {
			log.Warn("STARTUP", "Kafka topic bootstrap failed: "+err.Error())
		}
		producer = kafka.NewProducer(cfg.Kafka, log)
		defer producer.Close()
	} else {
		log.Warn("STARTUP", "Kafka disabled, payment events will not be published")
	}

	db := &bookingdb.DB{Bun: bunDB}
	pawapay := gateway.NewClient(cfg.PawaPay, log)
	depositLock := reconcileredis.NewDepositLock(redisClient)

	availabilityService := availability.NewService(db, log)
	refundService := refund.NewService(db, log)
	bookingService := booking.NewService(db, availabilityService, pawapay, refundService, log)

	var reconcilePublisher reconcile.EventPublisher
	var payoutPublisher payout.EventPublisher
	if producer != nil {
		reconcilePublisher = producer
		payoutPublisher = producer
	}

	reconcileService := reconcile.NewService(db, paymentStore, depositLock, reconcilePublisher, pawapay, log)
	payoutService := payout.NewService(paymentStore, db, pawapay, payoutPublisher, cfg.PawaPay, log)

	bookingHandler := bookingapi.NewHandler(bookingService, availabilityService, refundService, log)
	reconcileHandler := reconcileapi.NewHandler(reconcileService, paymentStore, log)
	payoutHandler := payoutapi.NewHandler(payoutService, log)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := paymentStore.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/api", func(r chi.Router) {
		r.Post("/checkout", bookingHandler.Checkout)
		r.Post("/availability/check", bookingHandler.CheckAvailability)
		r.Get("/orders/{orderId}", bookingHandler.GetOrder)

		r.Route("/bookings/{id}", func(r chi.Router) {
			r.Get("/", bookingHandler.GetBooking)
			r.Post("/auto-confirm", bookingHandler.AutoConfirm)
			r.Post("/cancel", bookingHandler.CancelBooking)
			r.Get("/refund", bookingHandler.RefundInfo)
		})

		r.Post("/payments/callback", reconcileHandler.PaymentCallback)
		r.Get("/payments/status", reconcileHandler.PaymentStatus)
		r.Get("/payments/order/{orderId}", reconcileHandler.OrderTransactions)

		r.Post("/payouts", payoutHandler.InitiatePayout)
		r.Get("/payouts/{id}/status", payoutHandler.PayoutStatus)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("STARTUP", "HTTP server listening on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "HTTP server failed: "+err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("SHUTDOWN", "Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("SHUTDOWN", "Forced shutdown: "+err.Error())
	}

	log.Info("SHUTDOWN", "Server stopped")
}

func pingWithRetry(db *sql.DB, attempts int, log *logger.Logger) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.Ping(); err == nil {
			log.Info("STARTUP", "PostgreSQL connected")
			return nil
		}
		log.Warn("STARTUP", "PostgreSQL not ready, retrying")
		time.Sleep(time.Duration(i) * time.Second)
	}
	return err
}
