package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asso-tools/assobot/internal/cache"
	"github.com/asso-tools/assobot/internal/config"
	"github.com/asso-tools/assobot/internal/metrics"
	"github.com/asso-tools/assobot/internal/reconcile"
	"github.com/asso-tools/assobot/internal/repository/postgres"
	"github.com/asso-tools/assobot/internal/resolve"
	"github.com/asso-tools/assobot/internal/service"
	"github.com/asso-tools/assobot/pkg/logger"
)

const programName = "assobot"

var globalFlags = struct {
	debug bool
}{}

// app is the state shared by every subcommand
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func (a *app) load(requireBot bool) error {
	cfg, err := config.Load(requireBot)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if globalFlags.debug {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg
	a.logger = logger.New(cfg.LogLevel)
	return nil
}

// core carries the wired service and what it needs to be shut down
type core struct {
	db        *config.Database
	svc       *service.Service
	directory reconcile.Directory
}

func (c *core) Close() error {
	return c.db.Close()
}

// openCore connects the database and wires the service. m may be nil.
func (a *app) openCore(m *metrics.Metrics) (*core, error) {
	db, err := config.NewDatabase(a.cfg.DatabaseURL, a.cfg.Pool, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	lookups := resolve.ChainLookup{resolve.MentionLookup{}}
	var directory reconcile.Directory
	if a.cfg.DirectoryFile != "" {
		dir, err := reconcile.LoadDirectory(a.cfg.DirectoryFile)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.logger.Infof("Loaded directory from %s", a.cfg.DirectoryFile)
		directory = dir
		lookups = append(lookups, dir)
	}

	c := cache.New(a.cfg.CacheTTL, cache.WithObserver(m.ObserveCache))
	svc := service.New(a.logger, service.Repositories{
		Members:     postgres.NewMemberRepository(db.DB),
		Contacts:    postgres.NewContactRepository(db.DB),
		Seasons:     postgres.NewSeasonRepository(db.DB),
		Memberships: postgres.NewMembershipRepository(db.DB),
		Events:      postgres.NewEventRepository(db.DB),
		Attendances: postgres.NewAttendanceRepository(db.DB),
		Roles:       postgres.NewRoleRepository(db.DB),
	}, c, service.WithResolver(resolve.New(lookups)))

	return &core{db: db, svc: svc, directory: directory}, nil
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Membership management bot for the association",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(serveCommand(a))
	rootCmd.AddCommand(migrateCommand(a))
	rootCmd.AddCommand(importCommand(a))
	rootCmd.AddCommand(rolesyncCommand(a))
	rootCmd.AddCommand(reportCommand(a))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
