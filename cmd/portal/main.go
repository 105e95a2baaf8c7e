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

	"google.golang.org/grpc"

	"hrportal.org/internal/audit"
	"hrportal.org/internal/auth"
	"hrportal.org/internal/auth/gotrue"
	"hrportal.org/internal/auth/localstore"
	"hrportal.org/internal/config"
	"hrportal.org/internal/httpapi"
	"hrportal.org/internal/obs"
	"hrportal.org/internal/store"
	"hrportal.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Load(config.DefaultFiles...)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	build := obs.ReadBuild(version, commit)
	if cfg.Version == "dev" {
		cfg.Version = build.Version
	}
	logger := obs.NewLogger(os.Stdout, cfg.Development())
	ctx := context.Background()

	obs.Init()
	obs.PublishBuild(build, cfg.Env)

	stopTracing := func(context.Context) error { return nil }
	if cfg.Tracing() {
		stopTracing, err = obs.StartTracing(os.Stdout, build, cfg.Env)
		if err != nil {
			log.Fatalf("tracing: %v", err)
		}
	}

	sessions := sessionStore(ctx, cfg, logger)

	opts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithAudit(audit.New(os.Stdout)),
	}
	ready := httpapi.Readiness{Backend: cfg.CheckBackend}

	// Without a database every profile is synthesized and the dashboards
	// render zeroed stats.
	var db *pg.Store
	if cfg.DatabaseDSN != "" {
		db, err = pg.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		repo := store.NewLogged(db, db, logger)
		opts = append(opts, httpapi.WithProfiles(repo), httpapi.WithActivity(repo))
		ready.DB = db
	} else {
		logger.Warn(ctx, "HRPORTAL_PG_DSN not set; running without the employee directory", nil)
	}
	opts = append(opts, httpapi.WithReadiness(ready))

	api := httpapi.New(cfg, sessions, opts...)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewGRPCServer(ready, logger)
		health.Register(grpcSrv)
		go health.Run(runCtx, 10*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
		logger.Info(ctx, "grpc health listening", obs.Fields{"addr": cfg.GRPCAddr})
	}

	logger.Info(ctx, "starting hr portal", obs.Fields{
		"version":  cfg.Version,
		"revision": build.ShortRevision(),
		"addr":     srv.Addr,
		"env":      cfg.Env,
		"backend":  cfg.Backend.Kind,
		"trace":    cfg.Trace,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info(ctx, "shutting down", nil)
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	if err := stopTracing(shutdownCtx); err != nil {
		logger.Warn(ctx, "trace flush failed", obs.Fields{"error": err})
	}
	logger.Info(ctx, "stopped", nil)
}

// sessionStore builds the configured backend. With settings CheckBackend
// rejects it returns nil: the session middleware sends every request to the
// configuration error page before a store would be consulted.
func sessionStore(ctx context.Context, cfg config.Config, logger *obs.Logger) auth.SessionStore {
	if err := cfg.CheckBackend(); err != nil {
		logger.Exception(ctx, err, "Configuration", "backend_check", nil)
		return nil
	}
	switch cfg.Backend.Kind {
	case config.BackendLocal:
		s, err := localstore.New(cfg.Backend.LocalSecret,
			localstore.WithMailer(localstore.LogMailer{Logger: logger}),
			localstore.WithAutoConfirm(false),
		)
		if err != nil {
			// CheckBackend accepted settings the store rejects; serving would
			// hand the middleware a nil store.
			log.Fatalf("local session store: %v", err)
		}
		return s
	default:
		return gotrue.New(cfg.Backend.URL, cfg.Backend.AnonKey)
	}
}
