// Command httptriggerd boots the scheduler: it opens the configured
// store, recovers from the bootstrap reconciler, starts the retention
// sweeper, and serves the REST surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"httptrigger/internal/api"
	"httptrigger/internal/config"
	"httptrigger/internal/ratelimit"
	"httptrigger/internal/reconcile"
	"httptrigger/internal/retention"
	"httptrigger/internal/scheduler"
	"httptrigger/internal/store"
)

func main() {
	cfg := config.Load()

	var (
		addr           = flag.String("addr", ":"+cfg.Port, "HTTP bind address")
		dbPath         = flag.String("db", cfg.DBPath, "SQLite DB path (DB_TYPE=sqlite)")
		retentionDays  = flag.Int("retention-days", cfg.LogRetentionDays, "execution log retention, in days")
		cleanupEnabled = flag.Bool("cleanup-enabled", cfg.LogCleanupEnabled, "run the retention sweeper")
		tz             = flag.String("tz", cfg.TZ, "time zone for cron evaluation and retention sweeps")
	)
	flag.Parse()
	cfg.TZ = *tz

	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		st  store.Store
		err error
	)
	switch cfg.DBType {
	case config.DBMySQL:
		st, err = store.NewMySQL(ctx, store.MySQLConfig{
			Host: cfg.DBHost, Port: cfg.DBPort, User: cfg.DBUsername, Password: cfg.DBPassword, Database: cfg.DBDatabase,
		})
	default:
		st, err = store.NewSQLite(ctx, *dbPath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	loc, err := cfg.Location()
	if err != nil {
		log.Warn().Str("tz", cfg.TZ).Err(err).Msg("unrecognized TZ, defaulting to UTC")
		loc = time.UTC
	}
	// Job timers compute cron fire instants from time.Now(), so the
	// configured zone becomes the process-local zone.
	time.Local = loc

	engine := scheduler.New(st)
	reconciler := reconcile.New(engine, st)
	if err := reconciler.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("bootstrap")
	}

	sweeper := retention.New(st, *retentionDays, *cleanupEnabled, loc)
	if *cleanupEnabled {
		if err := sweeper.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("start retention sweeper")
		}
		defer sweeper.Stop()
	}

	limiter := ratelimit.New()
	handler := api.NewServer(st, engine, reconciler, limiter, sweeper)
	srv := &http.Server{Addr: *addr, Handler: handler}

	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	engine.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, "shutdown complete")
}
