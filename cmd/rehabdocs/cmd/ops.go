package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

func newDiagnoseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check the issuance API configuration and credentials",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			gw, err := a.Gateway(cmd.Context())
			if err != nil {
				return err
			}
			d := gw.Diagnose(cmd.Context())
			if err := printJSON(cmd, d); err != nil {
				return err
			}
			if !d.Authenticated {
				return errors.New("issuance API authentication failed")
			}
			return nil
		}),
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			store, err := a.Statuses()
			if err != nil {
				return err
			}
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			repo, err := a.CertificateRepository()
			if err != nil {
				return err
			}
			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("database migrated")
			return nil
		}),
	}
}
