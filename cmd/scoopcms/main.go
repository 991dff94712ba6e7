// cmd/scoopcms is the application entry point. It wires the document
// store, content service, batch job, and HTTP server together, and
// optionally self-triggers the reschedule job on a cron schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"scoopcms/internal/config"
	"scoopcms/internal/content"
	appLog "scoopcms/internal/log"
	"scoopcms/internal/notify"
	"scoopcms/internal/scheduler"
	"scoopcms/internal/store"
	"scoopcms/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	appLog.Info("scoopcms starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"store_backend", conf.Store.Backend,
		"reschedule_cron", conf.Reschedule.Cron,
		"revalidate", conf.RevalidateURL != "",
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, conf)
	if err != nil {
		appLog.Error("failed to open document store", err, "backend", conf.Store.Backend)
		os.Exit(1)
	}
	defer closeStore()

	svc := content.NewService(st)
	notifier := notify.NewClient(conf.RevalidateURL)
	job := &scheduler.Job{
		Store:    st,
		Dir:      content.EventsDir,
		Notifier: notifier,
	}

	if flags.once {
		result, err := job.Run(ctx)
		if err != nil {
			appLog.Error("reschedule run failed", err)
			os.Exit(1)
		}
		for _, u := range result.Updated {
			appLog.Info("updated", "event", u)
		}
		for _, e := range result.Errors {
			appLog.Error("document failed", errors.New(e.Message), "slug", e.Slug)
		}
		if len(result.Errors) > 0 {
			os.Exit(1)
		}
		return
	}

	// Optional built-in trigger. External schedulers can hit the HTTP
	// endpoint instead; this just saves a cron entry on small deploys.
	if conf.Reschedule.Cron != "" {
		c := cron.New()
		_, err := c.AddFunc(conf.Reschedule.Cron, func() {
			if _, err := job.Run(context.Background()); err != nil {
				appLog.Error("scheduled reschedule run failed", err)
			}
		})
		if err != nil {
			appLog.Error("invalid reschedule cron expression", err, "cron", conf.Reschedule.Cron)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
		appLog.Info("built-in reschedule trigger enabled", "cron", conf.Reschedule.Cron)
	}

	server := web.NewServer(svc, job, conf.Reschedule.Secret)
	srv := &http.Server{
		Addr:         conf.Listen,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("server error", err)
			cancel()
		}
	}()

	// Block until SIGINT/SIGTERM (or server failure).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		appLog.Info("signal received, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("graceful shutdown failed", err)
	}
	appLog.Info("scoopcms exiting")
}

// openStore builds the configured document store backend.
func openStore(ctx context.Context, conf *config.Config) (store.Store, func(), error) {
	switch conf.Store.Backend {
	case config.BackendGitHub:
		gh := conf.Store.GitHub
		if gh.Owner == "" || gh.Repo == "" || gh.Token == "" {
			return nil, nil, fmt.Errorf("github store requires owner, repo, and token (set GITHUB_TOKEN)")
		}
		s := store.NewGitHub(ctx, store.GitHubOptions{
			Owner:  gh.Owner,
			Repo:   gh.Repo,
			Branch: gh.Branch,
			Token:  gh.Token,
		})
		return s, func() {}, nil

	case config.BackendSQLite:
		s, err := store.OpenSQLite(conf.Store.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case config.BackendMemory:
		return store.NewMemory(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", conf.Store.Backend)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./scoopcms.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one reschedule pass and exit")

	flag.Parse()

	return cfg
}
