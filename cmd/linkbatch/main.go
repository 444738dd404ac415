package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/cwygoda/linkbatch/internal/adapter/http"
	"github.com/cwygoda/linkbatch/internal/adapter/keyexchange"
	"github.com/cwygoda/linkbatch/internal/adapter/processor"
	"github.com/cwygoda/linkbatch/internal/adapter/sqlite"
	"github.com/cwygoda/linkbatch/internal/adapter/telegram"
	"github.com/cwygoda/linkbatch/internal/bot"
	"github.com/cwygoda/linkbatch/internal/config"
	"github.com/cwygoda/linkbatch/internal/domain"
	"github.com/cwygoda/linkbatch/internal/logging"
	"github.com/cwygoda/linkbatch/internal/registry"
	"github.com/cwygoda/linkbatch/internal/resolver"
	"github.com/cwygoda/linkbatch/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "linkbatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("BOT_TOKEN is not set")
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting linkbatch",
		"database", cfg.DBPath,
		"downloads", cfg.DownloadsDir,
		"http_addr", cfg.HTTPAddr,
	)

	repo, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer repo.Close()

	// Runs left "running" by a crash or /stop.
	if recovered, err := repo.RecoverStale(context.Background()); err != nil {
		logger.Warn("recover stale runs", "error", err)
	} else if recovered > 0 {
		logger.Info("marked interrupted runs aborted", "count", recovered)
	}
	if cfg.Telegram.OwnerID != 0 {
		if err := repo.AddAdmin(context.Background(), cfg.Telegram.OwnerID); err != nil {
			logger.Warn("register owner as admin", "error", err)
		}
	}

	tg := telegram.New(nil, cfg.Telegram.APIBase, cfg.Telegram.Token, cfg.Telegram.SendRate,
		logging.WithComponent(logger, "telegram"))

	reg, err := registry.FromSettings(cfg)
	if err != nil {
		return fmt.Errorf("build pattern registry: %w", err)
	}
	ruleNames := make([]string, 0, len(reg.Rules()))
	for _, r := range reg.Rules() {
		ruleNames = append(ruleNames, r.Name)
	}
	logger.Info("pattern registry ready", "rules", ruleNames)
	var exchanger domain.KeyExchanger
	if cfg.KeyExchange.Endpoint != "" {
		exchanger = keyexchange.New(cfg.KeyExchange.Endpoint, nil)
	} else {
		logger.Warn("no key-exchange endpoint configured, protected links degrade to generic downloads")
	}
	res := resolver.New(reg, exchanger,
		resolver.WithRetry(cfg.KeyExchange.Attempts, cfg.KeyExchange.Delay.Duration, cfg.KeyExchange.Timeout.Duration),
		resolver.WithLogger(logging.WithComponent(logger, "resolver")),
	)

	procLog := logging.WithComponent(logger, "processor")
	runner := processor.ExecRunner{Timeout: cfg.Tools.Timeout.Duration}
	downloader := processor.NewDownloader(runner, cfg.Tools.Downloader, cfg.CookiesFile, procLog)
	ffmpeg := processor.NewFFmpeg(runner, cfg.Tools.FFmpeg)
	deliverer := processor.NewDeliverer(tg, ffmpeg, procLog)
	dispatcher := processor.NewDispatcher(processor.Executors{
		Downloader: downloader,
		Scraper:    processor.NewScraper(nil, cfg.Scrape.UserAgent, cfg.Scrape.Backoff.Duration, cfg.Scrape.Timeout.Duration, procLog),
		Drive:      processor.NewDriveClient(nil, cfg.Scrape.DriveTimeout.Duration),
		Decrypt:    processor.NewDecryptHelper(runner, downloader, cfg.Tools.FFmpeg, cfg.Tools.MP4Decrypt, cfg.Tools.AppxDecrypt, procLog),
		Variants:   processor.NewVariantPicker(nil),
		Deliverer:  deliverer,
	}, processor.DispatchConfig{
		ScrapeHosts:    cfg.Scrape.Hosts,
		BatchAttempts:  cfg.Scrape.BatchAttempts,
		SingleAttempts: cfg.Scrape.SingleAttempts,
	}, procLog)

	orchestrator := worker.New(worker.Deps{
		Transport:  tg,
		Resolver:   res,
		Dispatcher: dispatcher,
		Deliverer:  deliverer,
		Runs:       repo,
	}, worker.WithLogger(logging.WithComponent(logger, "worker")))

	b := bot.New(bot.Config{
		OwnerID:        cfg.Telegram.OwnerID,
		DownloadsDir:   cfg.DownloadsDir,
		CookiesFile:    cfg.CookiesFile,
		Credit:         cfg.Credit,
		FilenamePrefix: cfg.FilenamePrefix,
		PollTimeout:    cfg.Telegram.PollTimeout.Duration,
		UploadTimeout:  cfg.Wizard.UploadTimeout.Duration,
		DRMTimeout:     cfg.Wizard.DRMTimeout.Duration,
		FileTimeout:    cfg.Wizard.FileTimeout.Duration,
	}, tg, tg, repo, orchestrator, logging.WithComponent(logger, "bot"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpAdapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpAdapter.NewServer(repo, cfg.HTTPAddr, logging.WithComponent(logger, "http"))
		go func() {
			logger.Info("HTTP server listening", "addr", srv.Addr())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	// Run returns after ctx is cancelled and running sessions have ended.
	if err := b.Run(ctx); err != nil {
		logger.Error("bot stopped", "error", err)
	}
	logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
