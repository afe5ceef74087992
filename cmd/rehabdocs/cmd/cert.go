package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamshmas/personal-rehabilitation-docs/certificate"
)

func newCertCmd(opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "cert",
		Short: "Inspect and register client digital certificates",
	}
	c.AddCommand(newCertInspectCmd(), newCertRegisterCmd(opts), newCertStatusCmd(opts), newCertRemoveCmd(opts))
	return c
}

type certInfo struct {
	certificate.Metadata
	Issuer       string `json:"issuer"`
	SerialNumber string `json:"serial_number"`
	ValidFrom    string `json:"valid_from"`
}

func newCertInspectCmd() *cobra.Command {
	var file, password string
	c := &cobra.Command{
		Use:   "inspect",
		Short: "Open a PKCS#12 file and print its certificate details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			bundle, err := certificate.Extract(b, password)
			if err != nil {
				return err
			}
			return printJSON(cmd, certInfo{
				Metadata:     bundle.Metadata(time.Now()),
				Issuer:       bundle.Issuer,
				SerialNumber: bundle.SerialNumber,
				ValidFrom:    bundle.ValidFrom.UTC().Format(time.RFC3339),
			})
		},
	}
	c.Flags().StringVar(&file, "file", "", "PKCS#12 (.pfx/.p12) file")
	c.Flags().StringVar(&password, "password", "", "certificate password")
	_ = c.MarkFlagRequired("file")
	return c
}

func newCertRegisterCmd(opts *rootOptions) *cobra.Command {
	var (
		clientID       int64
		file, password string
	)
	c := &cobra.Command{
		Use:   "register",
		Short: "Store a client's certificate, replacing any earlier one",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			b, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			svc, err := a.Credentials()
			if err != nil {
				return err
			}
			md, err := svc.Register(cmd.Context(), clientID, file, b, password)
			if err != nil {
				return fmt.Errorf("register certificate: %w", err)
			}
			return printJSON(cmd, md)
		}),
	}
	c.Flags().Int64Var(&clientID, "client", 0, "client id")
	c.Flags().StringVar(&file, "file", "", "PKCS#12 (.pfx/.p12) file")
	c.Flags().StringVar(&password, "password", "", "certificate password")
	_ = c.MarkFlagRequired("client")
	_ = c.MarkFlagRequired("file")
	return c
}

func newCertStatusCmd(opts *rootOptions) *cobra.Command {
	var clientID int64
	c := &cobra.Command{
		Use:   "status",
		Short: "Show whether a client has a registered certificate",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			svc, err := a.Credentials()
			if err != nil {
				return err
			}
			st, err := svc.Status(cmd.Context(), clientID)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		}),
	}
	c.Flags().Int64Var(&clientID, "client", 0, "client id")
	_ = c.MarkFlagRequired("client")
	return c
}

func newCertRemoveCmd(opts *rootOptions) *cobra.Command {
	var clientID int64
	c := &cobra.Command{
		Use:   "remove",
		Short: "Retire a client's registered certificate",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			svc, err := a.Credentials()
			if err != nil {
				return err
			}
			return svc.Remove(cmd.Context(), clientID)
		}),
	}
	c.Flags().Int64Var(&clientID, "client", 0, "client id")
	_ = c.MarkFlagRequired("client")
	return c
}
