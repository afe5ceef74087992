package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var (
		caseID int64
		court  string
		types  []string
	)
	c := &cobra.Command{
		Use:   "seed",
		Short: "Create a case's required-document checklist",
		Long: `Create a case's required-document checklist from the court's list, or from
--type when given. Documents already on the checklist are left untouched.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			var list []document.Type
			if len(types) > 0 {
				for _, s := range types {
					t, err := document.Parse(s)
					if err != nil {
						return err
					}
					list = append(list, t)
				}
			} else {
				var err error
				if list, err = document.RequiredFor(document.Court(court)); err != nil {
					return err
				}
			}
			store, err := a.Statuses()
			if err != nil {
				return err
			}
			if err := store.Seed(cmd.Context(), caseID, list...); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "case %d: %d required documents\n", caseID, len(list))
			return err
		}),
	}
	c.Flags().Int64Var(&caseID, "case", 0, "case id")
	c.Flags().StringVar(&court, "court", string(document.CourtDaegu), "court whose checklist to use")
	c.Flags().StringSliceVar(&types, "type", nil, "document types instead of the court checklist")
	markRequired(c, "case")
	return c
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var (
		caseID int64
		dt     string
	)
	c := &cobra.Command{
		Use:   "reset",
		Short: "Return a completed or stuck document to NOT_STARTED",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			t, err := document.Parse(dt)
			if err != nil {
				return err
			}
			store, err := a.Statuses()
			if err != nil {
				return err
			}
			return store.Reset(cmd.Context(), caseID, t)
		}),
	}
	c.Flags().Int64Var(&caseID, "case", 0, "case id")
	c.Flags().StringVar(&dt, "type", "", "document type")
	markRequired(c, "case", "type")
	return c
}
