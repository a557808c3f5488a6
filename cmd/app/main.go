package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/nbhugo/internal"
	"github.com/starford/nbhugo/internal/notebook"
	pkgconfig "github.com/starford/nbhugo/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func initSite(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Init(cmd.String("config"), internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("notebooks directory: %s\n", res.NotebooksDir)
	if res.ConfigWritten {
		fmt.Printf("wrote %s\n", res.ConfigFile)
	} else {
		fmt.Printf("kept existing %s\n", res.ConfigFile)
	}
	return nil
}

func render(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	results, err := internal.Render(ctx, internal.RenderOptions{
		Notebooks:   cmd.Args().Slice(),
		Destination: cmd.String("to"),
	}, internal.WithConfig(cfg))
	for _, r := range results {
		if r.Artifact != nil {
			fmt.Printf("%s -> %s\n", r.Notebook, r.Artifact.Markdown)
		}
	}
	return err
}

func metadata(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one notebook, got %d", cmd.Args().Len())
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	changed, err := internal.UpdateMetadata(ctx, cmd.Args().First(), notebook.Overrides{
		Title:    cmd.String("title"),
		Subtitle: cmd.String("subtitle"),
		Date:     cmd.String("date"),
		Slug:     cmd.String("slug"),
		TOC:      cmd.String("toc"),
		RenderTo: cmd.String("render-to"),
	}, internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	if !changed {
		fmt.Println("metadata unchanged")
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithServeOptions(internal.ServeOptions{
			NoJupyter: cmd.Bool("no-jupyter"),
			Open:      cmd.Bool("open"),
			HugoArgs:  cmd.Args().Slice(),
		}),
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func publish(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Publish(ctx, internal.WithConfig(cfg))
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, version, internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:    "nbhugo",
		Usage:   "Publish Jupyter notebooks as Hugo blog posts",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: internal.ConfigFile,
				Value:       internal.ConfigFile,
				Sources:     cli.EnvVars("NBHUGO_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Prepare the Hugo site in the current directory for notebooks",
				Action: initSite,
			},
			{
				Name:      "render",
				Usage:     "Stamp metadata into notebooks and render them into the site",
				ArgsUsage: "[notebook...]",
				Action:    render,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Usage: "Content directory overriding every notebook's render-to"},
				},
			},
			{
				Name:      "metadata",
				Usage:     "Set front matter values of a notebook",
				ArgsUsage: "<notebook>",
				Action:    metadata,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "subtitle"},
					&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD"},
					&cli.StringFlag{Name: "slug"},
					&cli.StringFlag{Name: "toc", Usage: `"true" or "false"`},
					&cli.StringFlag{Name: "render-to", Usage: "Content directory, e.g. content/post/"},
				},
			},
			{
				Name:      "serve",
				Usage:     "Watch notebooks and run hugo server and jupyter",
				ArgsUsage: "[-- hugo server args...]",
				Action:    serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-jupyter", Usage: "Do not start the notebook server"},
					&cli.BoolFlag{Name: "open", Usage: "Open the site in a browser"},
				},
			},
			{
				Name:   "publish",
				Usage:  "Render, build the site and push it to the publish branch",
				Action: publish,
			},
			{
				Name:   "mcp",
				Usage:  "Serve notebook tools over MCP on stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
