package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

func newVaultCmd(opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "vault",
		Short: "Encrypt and decrypt sensitive values with the master secret",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "encrypt",
			Short: "Encrypt one line read from stdin and print the token",
			Args:  cobra.NoArgs,
			RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
				v, err := a.Vault()
				if err != nil {
					return err
				}
				plaintext, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				blob, err := v.Encrypt(plaintext)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), blob)
				return err
			}),
		},
		&cobra.Command{
			Use:   "decrypt TOKEN",
			Short: "Decrypt a vault token and print the plaintext",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
				v, err := a.Vault()
				if err != nil {
					return err
				}
				plaintext, err := v.Decrypt(vault.EncryptedBlob(args[0]))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), plaintext)
				return err
			}),
		},
	)
	return c
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("nothing to encrypt on stdin")
	}
	return line, nil
}
