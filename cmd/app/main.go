package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notegraph/internal"
	"github.com/starford/notegraph/internal/graphstore"
	pkgconfig "github.com/starford/notegraph/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func backfill(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := internal.Backfill(ctx, cmd.Bool("rebuild"), internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	return printJSON(st)
}

func reconcile(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := internal.Reconcile(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	return printJSON(st)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func query(ctx context.Context, cmd *cli.Command) error {
	text := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("query text is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	hits, err := internal.Query(ctx, text, int(cmd.Int("top-k")), graphstore.VectorTarget(cmd.String("kind")),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return printJSON(hits)
}

func main() {
	cmd := &cli.Command{
		Name:   "notegraph",
		Usage:  "Keeps a graph of Markdown notes and their [[links]] in sync with a vault directory",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "backfill",
				Usage:  "Load every document in the vault into the graph",
				Action: backfill,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rebuild",
						Usage: "Clear the graph before loading",
					},
				},
			},
			{
				Name:   "reconcile",
				Usage:  "Repair drift between the graph and the files on disk",
				Action: reconcile,
			},
			{
				Name:   "mcp",
				Usage:  "Serve graph query tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:      "query",
				Usage:     "Find the documents or chunks most similar to the given text",
				ArgsUsage: "<text>",
				Action:    query,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of hits",
						Value:   5,
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Search target: chunk or document",
						Value: string(graphstore.TargetChunks),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
