package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/usestring/stateless-mcp/internal/config"
	"github.com/usestring/stateless-mcp/pkg/mcpsrv"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Serve MCP over stateless Streamable HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "Interface to bind (overrides HOST)",
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port to bind (overrides PORT)",
			Aliases: []string{"p"},
		},
		&cli.BoolFlag{
			Name:  "json-response",
			Usage: "Answer with application/json instead of an event stream (overrides MCP_JSON_RESPONSE)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (overrides LOG_LEVEL)",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		cfg := config.Load()
		if cmd.IsSet("host") {
			cfg.Host = cmd.String("host")
		}
		if cmd.IsSet("port") && cmd.Int("port") > 0 {
			cfg.Port = cmd.Int("port")
		}
		if cmd.IsSet("json-response") {
			cfg.JSONResponse = cmd.Bool("json-response")
		}

		opts := []mcpsrv.Option{mcpsrv.WithConfig(cfg)}
		if cmd.IsSet("log-level") {
			opts = append(opts, mcpsrv.WithLogLevel(cmd.String("log-level")))
		}

		server, err := mcpsrv.NewServer(opts...)
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to create MCP server: %w", err), 1)
		}
		defer server.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go watchSignals(ctx, sigCh, cancel)

		if err := server.Run(ctx); err != nil {
			slog.Error("server error", "error", err)
			return cli.Exit(err, 1)
		}
		return nil
	},
}

// watchSignals cancels the serve context on the first signal from sigCh.
func watchSignals(ctx context.Context, sigCh <-chan os.Signal, cancel context.CancelFunc) {
	select {
	case sig := <-sigCh:
		slog.Info(fmt.Sprintf("Received %s. Shutting down...", signalName(sig)))
		cancel()
	case <-ctx.Done():
	}
}

func signalName(sig os.Signal) string {
	switch sig {
	case os.Interrupt:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}
