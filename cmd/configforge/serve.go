package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"configforge/internal/api"
	"configforge/internal/tui"
)

const shutdownTimeout = 10 * time.Second

var errNotTerminal = errors.New("wizard needs an interactive terminal")

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = c.app.Config.HTTP.Addr
			}
			if strings.EqualFold(c.app.Config.Log.Level, "debug") {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			opts := api.Options{
				Logger:   c.app.Logger,
				Gatherer: c.app.Registry,
				Expvar:   true,
			}
			if c.app.TracerProvider != nil {
				opts.TracerProvider = c.app.TracerProvider
			}
			srv := &http.Server{Addr: addr, Handler: api.NewRouter(c.app.Service, opts), ReadHeaderTimeout: 10 * time.Second}
			return runServer(cmd.Context(), srv, c.app.Logger.Info)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// runServer serves until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func runServer(ctx context.Context, srv *http.Server, logf func(string, ...any)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logf("starting configforge server", "address", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logf("shutting down configforge server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (c *cli) wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Run the interactive configuration wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f, ok := cmd.InOrStdin().(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
				return errNotTerminal
			}
			p := tea.NewProgram(tui.New(cmd.Context(), c.app.Service),
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			_, err := p.Run()
			return err
		},
	}
}
