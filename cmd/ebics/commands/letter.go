package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/internal/app"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

func letterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "letter",
		Short: "Print the initialisation letter key hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := appCtx.Keys.LoadKeys(cmd.Context(), appCtx.Config.Subscriber.UserID)
			if err != nil {
				return err
			}
			return printLetter(cmd.OutOrStdout(), keys)
		},
	}
}

func printLetter(w io.Writer, keys *security.KeyMaterial) error {
	cfg := appCtx.Config
	entries, err := app.Letter(keys, cfg.Bank.UseCertificates)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Host:       %s\n", cfg.Bank.HostID)
	fmt.Fprintf(w, "Partner:    %s\n", cfg.Subscriber.PartnerID)
	fmt.Fprintf(w, "User:       %s (%s)\n", cfg.Subscriber.UserID, cfg.Subscriber.Name)
	fmt.Fprintf(w, "Date:       %s\n\n", time.Now().Format(time.DateOnly))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Version", "Hash (SHA-256)"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetRowLine(true)
	for _, e := range entries {
		table.Append([]string{purposeName(e.Purpose), string(e.Purpose), security.FormatHash(e.Hash)})
	}
	table.Render()
	return nil
}

func purposeName(p security.KeyPurpose) string {
	switch p {
	case security.PurposeSignature:
		return "Signature"
	case security.PurposeAuthentication:
		return "Authentication"
	default:
		return "Encryption"
	}
}
