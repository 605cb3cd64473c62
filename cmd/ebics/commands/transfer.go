package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/order"
)

// descriptorFlags selects a Legacy order with --order or a Structured
// service with --service.
type descriptorFlags struct {
	admin      string
	business   string
	structured order.Structured
	params     map[string]string
}

func (f *descriptorFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.admin, "order", "", "administrative order type (FUL, FDL, UPL, DNL, HAA, PTK, ...)")
	fs.StringVar(&f.business, "type", "", "business order type or file format (STA, pain.001.001.03, ...)")
	fs.StringVar(&f.structured.Service, "service", "", "BTF service name (SCT, EOP, STM, ...)")
	fs.StringVar(&f.structured.Scope, "scope", "", "BTF scope")
	fs.StringVar(&f.structured.Option, "option", "", "BTF service option")
	fs.StringVar(&f.structured.Container, "container", "", "BTF container type")
	fs.StringVar(&f.structured.MessageName, "message", "", "BTF message name (pain.001, camt.053, ...)")
	fs.StringVar(&f.structured.Variant, "variant", "", "BTF message variant")
	fs.StringVar(&f.structured.Version, "message-version", "", "BTF message version")
	fs.StringVar(&f.structured.Format, "format", "", "BTF message format")
	fs.StringToStringVar(&f.params, "param", nil, "order parameter key=value, repeatable")
}

func (f *descriptorFlags) descriptor() (order.Descriptor, error) {
	if f.structured.Service != "" {
		if f.admin != "" {
			return nil, errors.New("--order and --service are mutually exclusive")
		}
		return f.structured, nil
	}
	if f.admin == "" {
		return nil, errors.New("either --order or --service is required")
	}
	return order.Legacy{
		AdminType:    order.AdminOrderType(strings.ToUpper(f.admin)),
		BusinessType: f.business,
	}, nil
}

func uploadCmd() *cobra.Command {
	var (
		flags    descriptorFlags
		file     string
		unsigned bool
		eds      bool
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a file",
		Example: `  ebics upload --order FUL --type pain.001.001.03 --file payments.xml
  ebics upload --service SCT --scope DE --message pain.001 --file payments.xml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			o, err := order.NewUploadOrder(d,
				order.WithSignature(!unsigned),
				order.WithEDS(eds),
				order.WithUploadParams(flags.params),
			)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			s, err := appCtx.Session(ctx)
			if err != nil {
				return err
			}
			res, uploadErr := appCtx.Client.Upload(ctx, s, o, data)
			// The order counter may have advanced even when the bank rejected
			// the order.
			if err := appCtx.Persist(ctx, s); err != nil {
				return err
			}
			if uploadErr != nil {
				return uploadErr
			}

			color.Success.Printf("Uploaded %s in %d segment(s)\n", file, res.Segments)
			if res.OrderID != "" {
				fmt.Printf("Order ID:       %s\n", res.OrderID)
			}
			fmt.Printf("Transaction ID: %X\n", res.TransactionID)
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to upload")
	cmd.Flags().BoolVar(&unsigned, "unsigned", false, "send without electronic signature")
	cmd.Flags().BoolVar(&eds, "eds", false, "request a distributed signature")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func downloadCmd() *cobra.Command {
	var (
		flags    descriptorFlags
		out      string
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a file",
		Example: `  ebics download --order DNL --type STA --out statements.txt
  ebics download --service EOP --message camt.053 --from 2024-03-01 --to 2024-03-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			opts := []order.DownloadOption{order.WithDownloadParams(flags.params)}
			if from != "" || to != "" {
				start, end, err := parseRange(from, to)
				if err != nil {
					return err
				}
				opts = append(opts, order.WithDateRange(start, end))
			}
			o, err := order.NewDownloadOrder(d, opts...)
			if err != nil {
				return err
			}

			s, err := appCtx.Session(ctx)
			if err != nil {
				return err
			}

			w, commit, err := output(out)
			if err != nil {
				return err
			}
			res, err := appCtx.Client.Download(ctx, s, o, w)
			var receiptErr *ebics.ReceiptError
			switch {
			case errors.Is(err, ebics.ErrNoDataAvailable):
				_ = commit(false)
				color.Info.Println("No data available.")
				return nil
			case errors.As(err, &receiptErr):
				color.Warn.Printf("Receipt failed, the bank may deliver the data again: %v\n", receiptErr.Err)
			case err != nil:
				_ = commit(false)
				return err
			}
			if err := commit(true); err != nil {
				return err
			}

			if out != "" {
				color.Success.Printf("Downloaded %d bytes (%s) to %s\n", res.Bytes, res.ContentType, out)
			}
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, stdout when empty")
	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD)")
	return cmd
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, errors.New("--from and --to must be given together")
	}
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
	}
	return start, end, nil
}

// output returns the download destination. commit(false) removes a
// partially created file.
func output(path string) (io.Writer, func(ok bool) error, error) {
	if path == "" {
		return os.Stdout, func(bool) error { return nil }, nil
	}
	tmp := path + ".part"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func(ok bool) error {
		if err := f.Close(); err != nil || !ok {
			_ = os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, path)
	}, nil
}
