package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/internal/app"
	"github.com/sirosfoundation/go-ebics/internal/config"
)

var (
	configPath string
	appCtx     *app.App
)

// Execute runs the CLI until done or interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	err = errors.Join(err, closeApp(ctx))
	if err != nil {
		color.Error.Println(err)
	}
	return err
}

// closeApp releases the application built by the last command.
func closeApp(ctx context.Context) error {
	if appCtx == nil {
		return nil
	}
	err := appCtx.Close(ctx)
	appCtx = nil
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ebics",
		Short:         "EBICS client for key management and file transfer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg.Logging, nil).With("run_id", uuid.NewString())
			appCtx, err = app.New(cmd.Context(), cfg, app.WithLogger(logger))
			return err
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "ebics.yaml", "configuration file")

	root.AddCommand(
		keysCmd(),
		letterCmd(),
		iniCmd(),
		hiaCmd(),
		hpbCmd(),
		sprCmd(),
		statusCmd(),
		uploadCmd(),
		downloadCmd(),
		tracesCmd(),
	)
	return root
}
