package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal-auth/internal/config"
	"portal-auth/internal/mail"
	"portal-auth/internal/observability/logging"
	"portal-auth/internal/observability/metrics"
	"portal-auth/internal/ratelimit"
	impl "portal-auth/internal/service/impl"
	"portal-auth/internal/store"
	httpx "portal-auth/internal/transport/http"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "authd",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	logger.Info("starting service")

	cfg := config.Load()
	metrics.MustRegister()

	gdb, err := store.Open(store.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	if err := store.AutoMigrate(gdb); err != nil {
		logger.Error("migrate database", "error", err)
		os.Exit(1)
	}
	st := store.New(gdb)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pw := impl.NewPasswordServiceArgon2id()

	ts := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		MFATTL:     cfg.MFATTL,
		AccessKey:  []byte(cfg.AccessSigningKey),
		RefreshKey: []byte(cfg.RefreshSigningKey),
	}, st)

	mailer := mail.New(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		BaseURL:  cfg.AppBaseURL,
	})

	mfa := impl.NewMFAServiceImpl(st, cfg.Issuer)

	as := impl.NewAuthServiceImpl(st, pw, ts, mailer, mfa)
	as.VerifyTokenTTL = cfg.VerifyTokenTTL
	as.ResetTokenTTL = cfg.ResetTokenTTL

	loginLimiter := ratelimit.New(rdb, "rl:login", cfg.LoginRateLimit, cfg.LoginRateWindow)
	resetLimiter := ratelimit.New(rdb, "rl:reset", cfg.LoginRateLimit, cfg.LoginRateWindow)

	h := httpx.NewHandlers(as, ts, mfa, loginLimiter, resetLimiter)
	mux := httpx.NewRouter(h, ts, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("auth service listening", "addr", srv.Addr, "issuer", cfg.Issuer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = rdb.Close()
}
