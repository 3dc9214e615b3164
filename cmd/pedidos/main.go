// Command pedidos takes field orders against the spreadsheet gateway and
// administers the tenants that use it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartdata/pedidos/pkg/config"
)

// app carries what every command needs once the root command has run.
type app struct {
	logger *slog.Logger
	deps   *Dependencies
	json   bool

	// loadConfig is replaced in tests.
	loadConfig func() (*config.Config, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{loadConfig: config.Load}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pedidos",
		Short:         "Field order taking and tenant administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().BoolVar(&a.json, "json", false, "print results as JSON")

	root.AddCommand(
		newLoginCmd(a),
		newVendorCmd(a),
		newStatusCmd(a),
		newLogoutCmd(a),
		newClientsCmd(a),
		newProductsCmd(a),
		newOrderCmd(a),
		newLedgerCmd(a),
		newServeCmd(a),
		newAdminCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log)

	deps, err := InitDependencies(cfg, a.logger)
	if err != nil {
		return err
	}
	a.deps = deps
	return nil
}

func (a *app) close() {
	if a.deps != nil {
		a.deps.Cleanup()
		a.deps = nil
	}
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
