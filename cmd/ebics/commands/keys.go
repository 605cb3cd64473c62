package commands

import (
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage subscriber keys",
	}
	cmd.AddCommand(keysGenerateCmd(), keysListCmd())
	return cmd
}

func keysGenerateCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate signature, authentication and encryption keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := appCtx.GenerateKeys(cmd.Context(), force)
			if err != nil {
				return err
			}
			color.Success.Printf("Keys generated for %s.\n", appCtx.Config.Subscriber.UserID)
			return printLetter(cmd.OutOrStdout(), keys)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace existing keys")
	return cmd
}

func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keystore entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			aliases, err := appCtx.Keys.Aliases(cmd.Context())
			if err != nil {
				return err
			}
			for _, alias := range aliases {
				fmt.Fprintln(cmd.OutOrStdout(), alias)
			}
			return nil
		},
	}
}
