package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asso-tools/assobot/internal/api"
	"github.com/asso-tools/assobot/internal/format"
	"github.com/asso-tools/assobot/internal/handlers"
	"github.com/asso-tools/assobot/internal/ingest"
	"github.com/asso-tools/assobot/internal/metrics"
	"github.com/asso-tools/assobot/internal/reconcile"
	"github.com/asso-tools/assobot/internal/telegram"
)

func serveCommand(a *app) *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(true); err != nil {
				return err
			}
			return a.serve(skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

func (a *app) serve(skipMigrations bool) error {
	l := a.logger
	l.Info("Starting assobot...")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	c, err := a.openCore(m)
	if err != nil {
		return err
	}
	defer c.Close()

	if !skipMigrations {
		if err := c.db.Migrate(a.cfg.MigrationsPath); err != nil {
			return err
		}
	}

	bot, err := telegram.NewBot(a.cfg.TelegramToken, l, m.ObserveCommand)
	if err != nil {
		return err
	}

	env := &handlers.Env{
		Core:       c.svc,
		Logger:     l,
		Access:     a.cfg,
		Threshold:  a.cfg.MatchThreshold,
		Directory:  c.directory,
		ResetAfter: a.cfg.RoleResetAfter,
	}
	start := handlers.NewStartHandler(l)
	bot.RegisterCommand("start", start)
	bot.RegisterCommand("help", start)
	bot.RegisterCommand("member", handlers.NewMemberHandler(env))
	bot.RegisterCommand("season", handlers.NewSeasonHandler(env))
	bot.RegisterCommand("event", handlers.NewEventHandler(env))
	bot.RegisterCommand("presence", handlers.NewPresenceHandler(env))
	bot.RegisterCommand("rolesync", handlers.NewRoleSyncHandler(env))
	bot.RegisterCommand("sheet", handlers.NewSheetHandler(env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	if a.cfg.AuditInterval > 0 && c.directory != nil {
		go c.svc.StartRoleAudit(ctx, a.cfg.AuditInterval, c.directory, a.cfg.RoleResetAfter, func(rep *reconcile.Report) {
			m.SetMismatches(rep.Mismatches(), time.Now().Unix())
			if rep.Empty() {
				return
			}
			l.WithFields(logrus.Fields{
				"checked":    rep.Checked,
				"mismatches": rep.Mismatches(),
			}).Warn("Role groups out of sync")
			if a.cfg.ReportChatID != 0 {
				if err := bot.SendMessage(a.cfg.ReportChatID, format.ReconcileReport(rep)); err != nil {
					l.WithError(err).Error("Failed to send role audit report")
				}
			}
		})
	}

	apiServer := api.NewServer(c.svc, l, api.Options{
		Threshold:  a.cfg.MatchThreshold,
		Directory:  c.directory,
		ResetAfter: a.cfg.RoleResetAfter,
		Gatherer:   registry,
		Importer:   ingest.NewImporter(c.svc, l),
		Metrics:    m,
	})
	httpServer := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Infof("HTTP server listening on :%s", a.cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("HTTP server error: %v", err)
		}
	}()

	go func() {
		if err := bot.Start(ctx); err != nil {
			l.Errorf("Bot error: %v", err)
			cancel()
		}
	}()

	l.Info("assobot started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP server...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Errorf("HTTP server shutdown error: %v", err)
	}

	l.Info("assobot stopped")
	return nil
}
