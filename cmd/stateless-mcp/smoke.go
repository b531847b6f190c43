package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/urfave/cli/v3"

	"github.com/usestring/stateless-mcp/internal/smoke"
)

const defaultSmokeURL = "http://127.0.0.1:1071"

var smokeCmd = &cli.Command{
	Name:  "smoke",
	Usage: "Check a running server by calling calculate 8 + 3",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Usage:   "Base URL of the server",
			Value:   defaultSmokeURL,
			Sources: cli.EnvVars("SMOKE_URL"),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait for /health",
			Value: smoke.DefaultHealthTimeout,
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		client := smoke.New(cmd.String("url"), &http.Client{Timeout: cmd.Duration("timeout")})

		if err := client.WaitForHealth(ctx, cmd.Duration("timeout")); err != nil {
			return cli.Exit(fmt.Errorf("server not healthy: %w", err), 1)
		}

		report, err := client.Run(ctx)
		if err != nil {
			return cli.Exit(fmt.Errorf("smoke test failed: %w", err), 1)
		}

		fmt.Println(report.Text)
		if report.UsedBatch {
			fmt.Println("Direct call was rejected; initialize batch succeeded.")
		}
		if report.SchemaValidated {
			fmt.Println("structuredContent matches the advertised outputSchema.")
		}
		fmt.Println("Smoke test passed.")
		return nil
	},
}
