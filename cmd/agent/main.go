package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/engine"
	"github.com/hamed0406/sitewatch/internal/httpapi"
	"github.com/hamed0406/sitewatch/internal/logging"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("store_open_error", zap.Error(err))
	}
	defer store.Close()

	if cfg.SitesFile != "" {
		if err := seedSites(ctx, store, cfg.SitesFile); err != nil {
			logger.Fatal("seed_error", zap.String("file", cfg.SitesFile), zap.Error(err))
		}
	}

	probeCfg := probe.Config{
		HTTPTimeout:   cfg.HTTPTimeout,
		DNSTimeout:    cfg.DNSTimeout,
		TCPTimeout:    cfg.TCPTimeout,
		SMTPTimeout:   cfg.SMTPTimeout,
		DBTimeout:     cfg.DBTimeout,
		GRPCTimeout:   cfg.GRPCTimeout,
		SlowAfter:     cfg.SlowAfter,
		VerySlowAfter: cfg.VerySlowAfter,
		DoHURL:        cfg.DoHURL,
	}

	tasks := engine.NewTaskGroup(logger)
	machine := &engine.StatusMachine{
		Sites:     store,
		History:   store,
		Incidents: store,
		Logger:    logger,
	}
	certs := &engine.CertMonitor{
		Sites:      store,
		Incidents:  store,
		Alerts:     store,
		Fetcher:    &engine.TLSFetcher{},
		Logger:     logger,
		MinRecheck: cfg.CertRecheck,
	}
	dispatcher := &notify.Dispatcher{
		Cfg: notify.Config{
			Enabled: cfg.Notify.Enabled,
			Events:  cfg.Notify.Events,
		},
		Channels: buildChannels(cfg.Notify),
		Logger:   logger,
	}
	sched := &engine.Scheduler{
		Sites:    store,
		State:    store,
		Registry: probe.NewRegistry(probeCfg),
		Machine:  machine,
		Certs:    certs,
		Notifier: dispatcher,
		Tasks:    tasks,
		Logger:   logger,
	}

	api := httpapi.NewServer(logger, store)
	srv := &http.Server{Addr: cfg.Addr, Handler: api.Router()}
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_error", zap.Error(err))
		}
	}()

	logger.Info("agent_started",
		zap.Duration("tick_interval", cfg.TickEvery),
	)

	ticker := time.NewTicker(cfg.TickEvery)
	defer ticker.Stop()

	runTick(ctx, sched, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("agent_stopping")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
			// detached work (cert checks, notifications) must finish
			// before the process may go away
			tasks.Wait()
			logger.Info("agent_stopped")
			return
		case <-ticker.C:
			runTick(ctx, sched, logger)
		}
	}
}

func runTick(ctx context.Context, sched *engine.Scheduler, logger *zap.Logger) {
	if err := sched.Tick(ctx, time.Now().UTC()); err != nil {
		logger.Warn("tick_error", zap.Error(err))
	}
}

func openStore(ctx context.Context, url string) (repo.Store, error) {
	switch {
	case url == "":
		return memory.New(), nil
	case strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://"):
		return postgres.New(ctx, url)
	default:
		return sqlite.New(strings.TrimPrefix(url, "sqlite://"))
	}
}

func seedSites(ctx context.Context, store repo.SiteStore, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sites []domain.Site
	if err := json.Unmarshal(data, &sites); err != nil {
		return err
	}
	for i := range sites {
		if err := store.Add(ctx, &sites[i]); err != nil {
			return err
		}
	}
	return nil
}

func buildChannels(cfg config.NotifyConfig) []notify.Channel {
	var out []notify.Channel
	if ch := notify.NewSlack(cfg.SlackWebhook); ch != nil {
		out = append(out, ch)
	}
	if ch := notify.NewDiscord(cfg.DiscordWebhook); ch != nil {
		out = append(out, ch)
	}
	if ch := notify.NewWebhook(cfg.WebhookURL); ch != nil {
		out = append(out, ch)
	}
	switch {
	case cfg.EmailAPIURL != "":
		if ch := notify.NewEmailAPI(cfg.EmailAPIURL, cfg.EmailAPIToken, cfg.EmailFrom, cfg.EmailTo); ch != nil {
			out = append(out, ch)
		}
	case cfg.SMTPHost != "" && cfg.EmailTo != "":
		out = append(out, &notify.EmailSMTP{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Security: cfg.SMTPSecurity,
			User:     cfg.SMTPUser,
			Pass:     cfg.SMTPPass,
			From:     cfg.EmailFrom,
			To:       cfg.EmailTo,
		})
	}
	return out
}
