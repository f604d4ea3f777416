package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/asso-tools/assobot/internal/format"
	"github.com/asso-tools/assobot/internal/report"
)

func rolesyncCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rolesync",
		Short: "Compare the directory's role groups with the expected ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(false); err != nil {
				return err
			}
			c, err := a.openCore(nil)
			if err != nil {
				return err
			}
			defer c.Close()
			if c.directory == nil {
				return errors.New("DIRECTORY_FILE is not set")
			}

			rep, err := c.svc.ReconcileRoles(cmd.Context(), c.directory, c.svc.Now(), a.cfg.RoleResetAfter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.ReconcileReport(rep))
			return nil
		},
	}
}

func reportCommand(a *app) *cobra.Command {
	var (
		season string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the attendance sheet of a season as a workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(false); err != nil {
				return err
			}
			c, err := a.openCore(nil)
			if err != nil {
				return err
			}
			defer c.Close()

			sheet, err := c.svc.AttendanceSheet(cmd.Context(), season)
			if err != nil {
				return err
			}
			if out == "" {
				out = "emargement-" + sheet.Season.Name + ".xlsx"
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := report.WriteXLSX(f, sheet); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", out, err)
			}
			a.logger.Infof("Wrote %d row(s) on %d page(s) to %s", sheet.Filled(), len(sheet.Pages()), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&season, "season", "", "season name, the current season when empty")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}
