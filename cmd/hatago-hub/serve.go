package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
	"github.com/himorishige/hatago-mcp-hub/internal/dispatcher"
	"github.com/himorishige/hatago-mcp-hub/internal/gateway"
	"github.com/himorishige/hatago-mcp-hub/internal/hub"
	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

var (
	serveConfigPath string
	serveAddr       string
	serveNoHTTP     bool
	serveNoStdio    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hub: connect configured servers and serve the upstream endpoint",
	Long: `serve loads the server configuration, eagerly connects every
eager-start downstream server, then serves the upstream MCP endpoint over
both stdio and streamable-HTTP (either can be disabled) until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to the hub configuration YAML file (required)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address for the streamable-HTTP upstream surface")
	serveCmd.Flags().BoolVar(&serveNoHTTP, "no-http", false, "disable the HTTP upstream surface")
	serveCmd.Flags().BoolVar(&serveNoStdio, "no-stdio", false, "disable the stdio upstream surface")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(&cfg)

	logging.Info("serve", "connecting eager-start servers")
	if err := h.StartEager(ctx); err != nil {
		logging.Warn("serve", "eager startup reported an error: %v", err)
	}

	go h.RunHealthChecks(ctx, 0)

	d := dispatcher.New(h)
	gw := gateway.New(d, h.Relay, h.Sessions)

	eg, egCtx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if !serveNoHTTP {
		httpServer = &http.Server{Addr: serveAddr, Handler: gw.Handler()}
		eg.Go(func() error {
			logging.Info("serve", "HTTP upstream surface listening on %s", serveAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
	}

	if !serveNoStdio {
		eg.Go(func() error {
			logging.Info("serve", "stdio upstream surface ready")
			if err := gw.ServeStdio(egCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stdio surface: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logging.Warn("serve", "HTTP server shutdown: %v", err)
			}
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	logging.Info("serve", "shutdown complete")
	return nil
}
