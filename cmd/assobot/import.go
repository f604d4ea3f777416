package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asso-tools/assobot/internal/ingest"
)

func importCommand(a *app) *cobra.Command {
	var (
		author int64
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Import seasons, members, memberships, events and attendances from a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(false); err != nil {
				return err
			}
			return a.runImport(cmd.Context(), args[0], author, dryRun)
		},
	}
	cmd.Flags().Int64Var(&author, "author", 0, "member id recorded as the author of every write")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate without writing")
	return cmd
}

func (a *app) runImport(ctx context.Context, path string, author int64, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	batch, err := ingest.Parse(f)
	if err != nil {
		return err
	}

	c, err := a.openCore(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	im := ingest.NewImporter(c.svc, a.logger)
	if !dryRun {
		if err := im.RequireAuthor(ctx, author); err != nil {
			return fmt.Errorf("invalid --author: %w", err)
		}
	}
	if err := im.Validate(ctx, batch); err != nil {
		return err
	}
	if dryRun {
		a.logger.Info("Workbook is valid, nothing written")
		return nil
	}

	stats, err := im.Apply(ctx, batch, author)
	if err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"seasons":     stats.Seasons,
		"members":     stats.Members,
		"memberships": stats.Memberships,
		"events":      stats.Events,
		"attendances": stats.Attendances,
		"skipped":     stats.Skipped,
	}).Info("Import finished")
	return nil
}
