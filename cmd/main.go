// cmd/main.go is the EnjoyCity server entry point.
// It loads configuration, wires every layer and serves HTTP until signalled.
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

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/Shivanand-hulikatti/enjoycity/internal/config"
	"github.com/Shivanand-hulikatti/enjoycity/internal/database"
	"github.com/Shivanand-hulikatti/enjoycity/internal/handler"
	"github.com/Shivanand-hulikatti/enjoycity/internal/notify"
	"github.com/Shivanand-hulikatti/enjoycity/internal/repository"
	"github.com/Shivanand-hulikatti/enjoycity/internal/service"
	"github.com/Shivanand-hulikatti/enjoycity/internal/session"
	"github.com/Shivanand-hulikatti/enjoycity/internal/ticket"
	"github.com/Shivanand-hulikatti/enjoycity/internal/upload"
	"github.com/Shivanand-hulikatti/enjoycity/internal/validate"
	"github.com/Shivanand-hulikatti/enjoycity/migrations"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Storage ──────────────────────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.DSN(), database.Options{MaxConns: cfg.DB.MaxConns}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}
	log.Info().Msg("migrations applied")

	clk := clock.NewSystem()
	revoker := newRevoker(ctx, cfg, clk, log)

	// ── Booking notifications ────────────────────────────────────────────
	var publisher notify.Publisher = notify.Nop{}
	if cfg.AMQPURL != "" {
		p, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to rabbitmq")
		}
		defer p.Close()
		publisher = p
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing booking messages")

		if cfg.NotifyConsumer {
			startConsumer(ctx, cfg, log)
		}
	}
	notifier := notify.NewNotifier(publisher, log)

	// ── Services ─────────────────────────────────────────────────────────
	events := repository.NewEventRepository(pool)
	bookings := repository.NewBookingRepository(pool)
	users := repository.NewUserRepository(pool, clk)
	categories := repository.NewCategoryRepository(pool)
	images := upload.NewStore(cfg.UploadDir, log)

	identity := session.Identity{}
	v := validate.New(clk)

	catalogSvc := service.NewEventService(events, categories, images, identity, users, v, clk)
	bookingSvc := service.NewBookingService(bookings, identity, users, notifier, clk)
	accountSvc := service.NewAccountService(users, identity, v)
	adminSvc := service.NewAdminService(events, categories, users, identity, v, clk)

	if cfg.AdminEmail != "" {
		if _, err := accountSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("seed admin account")
		}
		log.Info().Str("email", cfg.AdminEmail).Msg("admin account ready")
	}

	// ── HTTP ─────────────────────────────────────────────────────────────
	loc, _ := time.LoadLocation(cfg.Timezone)
	sessions := session.NewManager(session.Options{
		Secret:       cfg.JWTSecret,
		TTL:          cfg.SessionTTL,
		SecureCookie: cfg.CookieSecure,
		Revoker:      revoker,
		Clock:        clk,
	}, log)

	router, err := handler.NewRouter(handler.Deps{
		Catalog:            catalogSvc,
		Bookings:           bookingSvc,
		Accounts:           accountSvc,
		Admin:              adminSvc,
		Sessions:           sessions,
		Tickets:            ticket.NewIssuer(cfg.TicketSecret),
		Pinger:             pool,
		UploadDir:          images.Root(),
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Location:           loc,
		Log:                log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if strings.EqualFold(cfg.LogFormat, "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "enjoycity").Logger()
}

// newRevoker shares session revocations through Redis when configured and
// keeps them in process otherwise.
func newRevoker(ctx context.Context, cfg config.Config, clk clock.Clock, log zerolog.Logger) session.Revoker {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("REDIS_ADDR not set, session revocations are kept in memory")
		return session.NewMemoryRevoker(clk)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect to redis")
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
	return session.NewRedisRevoker(rdb)
}

// startConsumer runs the confirmation mail worker until ctx ends.
func startConsumer(ctx context.Context, cfg config.Config, log zerolog.Logger) {
	consumer, err := notify.NewConsumer(notify.ConsumerConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
		Bindings: []string{notify.BindingAll},
	}, notify.MailLogger{Log: log}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("start booking consumer")
	}
	go func() {
		defer consumer.Close()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("booking consumer stopped")
		}
	}()
}
