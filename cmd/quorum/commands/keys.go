package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/0Ankit0-0/quorum/pkg/security"
)

// ErrKeysExist guards against silently overwriting a node's signing keys.
var ErrKeysExist = errors.New("key pair already exists; pass --force to replace it")

// NewKeysCommand manages the node signing key pair.
func NewKeysCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the node signing keys",
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	var (
		bits  int
		force bool
	)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new RSA key pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			privatePath := app.Config.PrivateKeyPath()
			publicPath := app.Config.PublicKeyPath()

			if !force {
				_, statErr := os.Stat(privatePath)
				if statErr == nil {
					return ErrKeysExist
				}
			}

			privatePEM, publicPEM, err := security.GenerateKeyPair(bits)
			if err != nil {
				return err
			}

			err = os.WriteFile(privatePath, privatePEM, 0o600)
			if err != nil {
				return fmt.Errorf("write private key: %w", err)
			}

			err = os.WriteFile(publicPath, publicPEM, 0o644)
			if err != nil {
				return fmt.Errorf("write public key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Private key: %s\n", privatePath)
			fmt.Fprintf(out, "Public key:  %s\n", publicPath)
			fmt.Fprintln(out, "Distribute the public key to peers that verify this node's packages.")

			return nil
		},
	}
	generateCmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	generateCmd.Flags().BoolVar(&force, "force", false, "replace an existing key pair")

	cmd.AddCommand(generateCmd)

	return cmd
}
