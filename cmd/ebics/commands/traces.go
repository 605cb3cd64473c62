package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

func tracesCmd() *cobra.Command {
	var (
		filter storage.TraceFilter
		since  time.Duration
		show   string
	)
	cmd := &cobra.Command{
		Use:   "traces",
		Short: "List traced requests and responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if show != "" {
				t, err := appCtx.Storage.GetTrace(ctx, show)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(t.Body)
				return err
			}

			filter.HostID = appCtx.Config.Bank.HostID
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}
			traces, err := appCtx.Storage.ListTraces(ctx, &filter)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Time", "Dir", "Order", "Phase", "Segment", "Transaction", "Size"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, t := range traces {
				segment := ""
				if t.Segment > 0 {
					segment = strconv.Itoa(t.Segment)
				}
				table.Append([]string{
					t.ID,
					t.Time.Local().Format(time.DateTime),
					t.Direction,
					t.OrderType,
					t.Phase,
					segment,
					t.TransactionID,
					fmt.Sprintf("%d", t.Size),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.UserID, "user", "", "only traces of this user")
	cmd.Flags().StringVar(&filter.OrderType, "order-type", "", "only traces of this order type")
	cmd.Flags().StringVar(&filter.TransactionID, "transaction", "", "only traces of this transaction (hex)")
	cmd.Flags().DurationVar(&since, "since", 0, "only traces newer than this")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "maximum number of traces")
	cmd.Flags().StringVar(&show, "show", "", "print the document of one trace")
	return cmd
}
