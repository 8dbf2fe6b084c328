package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"phiguard/internal/alert"
	"phiguard/internal/alert/kafkasink"
	"phiguard/internal/alert/webhook"
	"phiguard/internal/audit"
	audithandler "phiguard/internal/audit/handler"
	auditmemory "phiguard/internal/audit/store/memory"
	auditpostgres "phiguard/internal/audit/store/postgres"
	"phiguard/internal/jwttoken"
	"phiguard/internal/platform/config"
	"phiguard/internal/platform/httpserver"
	"phiguard/internal/platform/logger"
	"phiguard/internal/platform/metrics"
	platformredis "phiguard/internal/platform/redis"
	"phiguard/internal/report"
	reporthandler "phiguard/internal/report/handler"
	authmw "phiguard/pkg/platform/middleware/auth"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal packages.
func main() {
	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}
	m := metrics.New()

	// Event store: durable postgres ledger, or in-memory for development.
	var store audit.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pgStore := auditpostgres.New(db)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			log.Error("ensure audit schema", "error", err)
			os.Exit(1)
		}
		store = pgStore
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory event store; audit history will not survive restarts")
		store = auditmemory.NewStore()
	}

	// Alert sinks and dedupe.
	var sinks []alert.Sink
	if cfg.Alert.WebhookURL != "" {
		sinks = append(sinks, webhook.New(cfg.Alert.WebhookURL))
	}
	if len(cfg.Alert.KafkaBrokers) > 0 {
		kafka, err := kafkasink.New(cfg.Alert.KafkaBrokers, cfg.Alert.KafkaTopic)
		if err != nil {
			log.Error("connect kafka alert sink", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		sinks = append(sinks, kafka)
	}

	var dedupe alert.Deduper = alert.NewMemoryDeduper(cfg.Alert.DedupeWindow)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		dedupe = alert.NewRedisDeduper(redisClient.Client, cfg.Alert.DedupeWindow)
	}

	dispatcher := alert.NewDispatcher(
		alert.Config{
			QueueSize:    cfg.Alert.QueueSize,
			MaxAttempts:  cfg.Alert.MaxAttempts,
			RetryBackoff: cfg.Alert.RetryBackoff,
		},
		log, sinks,
		alert.WithDeduper(dedupe),
		alert.WithMetrics(m),
	)

	recorder := audit.NewRecorder(store,
		audit.RuleConfig{
			ClinicTimezone:      cfg.Audit.ClinicTimezone,
			BusinessHoursStart:  cfg.Audit.BusinessHoursStart,
			BusinessHoursEnd:    cfg.Audit.BusinessHoursEnd,
			MaxAccessPerHour:    cfg.Audit.MaxAccessPerHour,
			BulkAccessThreshold: cfg.Audit.BulkAccessThreshold,
			BulkAccessWindow:    cfg.Audit.BulkAccessWindow,
			ExcessiveWindow:     cfg.Audit.ExcessiveWindow,
		},
		audit.WithAlertDispatcher(dispatcher),
		audit.WithLogger(log),
		audit.WithMetrics(m),
	)

	reporting := report.NewService(store, cfg.Audit.ReportingTimezone, log)
	jwtService := jwttoken.New(cfg.JWTSigningKey, "phiguard")

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwtAdapter{jwtService}, log))
		audithandler.New(recorder, log).Register(r)
	})
	router.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwtAdapter{jwtService}, log))
		r.Use(authmw.RequireRole(string(audit.RoleOwner)))
		reporthandler.New(reporting, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting phiguard", "addr", cfg.Addr, "retention_years", cfg.Audit.RetentionYears)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// jwtAdapter narrows the jwttoken service to the middleware's validator
// interface.
type jwtAdapter struct {
	service *jwttoken.Service
}

func (a jwtAdapter) Validate(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		PatientID: claims.PatientID,
	}, nil
}
