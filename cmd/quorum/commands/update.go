package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/0Ankit0-0/quorum/internal/update"
)

// NewUpdateCommand verifies and applies signed offline updates.
func NewUpdateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Verify and apply signed offline update packages",
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	verifyCmd := &cobra.Command{
		Use:   "verify <package.qup>",
		Short: "Check a package's integrity and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			publicKey, err := readKey(app.Config.PublicKeyPath())
			if err != nil {
				return err
			}

			svc := update.NewService(app.Store, app.Config.UpdatesDir(), app.Config.ModelsDir(), app.Logger)

			payload, err := svc.Verify(args[0], publicKey)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s update, version %s\n",
				okColor.Sprint("Valid:"), payload.Type, payload.Version)

			return nil
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply <package.qup>",
		Short: "Verify and apply a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			publicKey, err := readKey(app.Config.PublicKeyPath())
			if err != nil {
				return err
			}

			svc := update.NewService(app.Store, app.Config.UpdatesDir(), app.Config.ModelsDir(), app.Logger)

			result, err := svc.Apply(cmd.Context(), args[0], publicKey)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %s update version %s (%d items)\n",
				result.Type, result.Version, result.Items)

			return nil
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List applied updates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			svc := update.NewService(app.Store, app.Config.UpdatesDir(), app.Config.ModelsDir(), app.Logger)

			history, err := svc.History()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(history) == 0 {
				fmt.Fprintln(out, "No updates applied.")

				return nil
			}

			t := newTable(out, "TYPE", "VERSION", "ITEMS", "APPLIED")
			for _, entry := range history {
				t.AppendRow(table.Row{entry.Type, entry.Version, entry.Items, ago(entry.AppliedAt)})
			}
			t.Render()

			return nil
		},
	}

	cmd.AddCommand(verifyCmd, applyCmd, historyCmd)

	return cmd
}
