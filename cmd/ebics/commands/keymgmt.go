package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/session"
)

// sessionCmd runs op on the configured subscriber and persists the result.
func sessionCmd(use, short string, op func(ctx context.Context, s *session.Session) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := appCtx.Session(ctx)
			if err != nil {
				return err
			}
			before := s.User.Status
			opErr := op(ctx, s)
			if err := appCtx.Persist(ctx, s); err != nil {
				return err
			}
			if opErr != nil {
				return opErr
			}
			printStatus(before, s.User.Status)
			return nil
		},
	}
}

func printStatus(before, after session.Status) {
	if before == after {
		color.Yellow.Printf("Status unchanged: %s\n", after)
		return
	}
	fmt.Printf("Status: %s -> %s\n", before, color.New(color.FgGreen, color.OpBold).Render(after.String()))
}

func iniCmd() *cobra.Command {
	return sessionCmd("ini", "Register the signature key (INI)", func(ctx context.Context, s *session.Session) (err error) {
		s.User.Status, err = appCtx.Client.RegisterSignatureKey(ctx, s)
		return err
	})
}

func hiaCmd() *cobra.Command {
	return sessionCmd("hia", "Register the authentication and encryption keys (HIA)", func(ctx context.Context, s *session.Session) (err error) {
		s.User.Status, err = appCtx.Client.RegisterAuthenticationKeys(ctx, s)
		return err
	})
}

func hpbCmd() *cobra.Command {
	return sessionCmd("hpb", "Fetch the bank keys (HPB)", func(ctx context.Context, s *session.Session) error {
		keys, status, err := appCtx.Client.FetchBankKeys(ctx, s)
		if err != nil {
			return err
		}
		s.Bank.Keys = keys
		s.User.Status = status

		auth, err := keys.AuthenticationDigest()
		if err != nil {
			return err
		}
		enc, err := keys.EncryptionDigest()
		if err != nil {
			return err
		}
		fmt.Printf("Bank authentication key (X002):\n%s\n", security.FormatHash(auth))
		fmt.Printf("Bank encryption key (E002):\n%s\n", security.FormatHash(enc))
		if s.Bank.ExpectedAuthenticationHash == nil || s.Bank.ExpectedEncryptionHash == nil {
			color.Warn.Println("Compare these hashes with the bank's letter before sending orders.")
		}
		return nil
	})
}

func sprCmd() *cobra.Command {
	return sessionCmd("spr", "Suspend the subscriber (SPR)", func(ctx context.Context, s *session.Session) (err error) {
		s.User.Status, err = appCtx.Client.RevokeSubscriber(ctx, s)
		return err
	})
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted subscribers of the configured bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hostID := appCtx.Config.Bank.HostID
			subs, err := appCtx.Storage.ListSubscribers(ctx, hostID)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Partner", "User", "Version", "Status", "Next order", "Updated"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, sub := range subs {
				counter := 0
				p, err := appCtx.Storage.GetPartner(ctx, hostID, sub.PartnerID)
				if err == nil {
					counter = p.OrderCounter
				} else if !errors.Is(err, storage.ErrNotFound) {
					return err
				}
				next := "-"
				if sub.Version == "H004" {
					next, _ = session.NextOrderID(counter)
				}
				table.Append([]string{sub.PartnerID, sub.UserID, sub.Version, sub.Status, next, sub.UpdatedAt.Local().Format("2006-01-02 15:04")})
			}
			table.Render()
			return nil
		},
	}
}
