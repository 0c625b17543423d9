// Package main 本地命令行：生成资产包与地图，管理 SQLite 存档
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/domain/repository"
	einoobs "roguelike-forge-api/internal/observability/eino"
	"roguelike-forge-api/internal/wire"
	"roguelike-forge-api/pkg/logger"
)

const usage = `usage: forge <command> [flags]

commands:
  bundle  -theme <text> [-out file]   generate an asset bundle and store it
  map     -theme <text> [-out file]   generate a compiled map
  list    [-page n] [-size n]         list stored bundles
  show    -id <bundle id>             print a stored bundle
  delete  -id <bundle id>             delete a stored bundle
`

var commands = map[string]bool{"bundle": true, "map": true, "list": true, "show": true, "delete": true}

func main() {
	if len(os.Args) < 2 || !commands[os.Args[1]] {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// stdout 留给命令输出
	logOpts := cfg.Observability.Logging.LoggerOptions()
	if logOpts.Output == "" || logOpts.Output == logger.OutputStdout {
		logOpts.Output = logger.OutputStderr
	}
	logger.InitWithOptions(logOpts)
	einoobs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := wire.InitializeForge(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	err = run(ctx, cfg, deps, os.Args[1], os.Args[2:])
	cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forge %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, deps *wire.Forge, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	switch cmd {
	case "bundle":
		theme := fs.String("theme", "", "world theme; a sample theme is used when empty")
		out := fs.String("out", "", "also write the bundle JSON to this file")
		if err := fs.Parse(args); err != nil {
			return err
		}
		b, err := deps.BundleGen.Generate(ctx, pickTheme(*theme, cfg.Generation.SampleThemes))
		if err != nil {
			return err
		}
		if err := deps.Bundles.Create(ctx, b); err != nil {
			return fmt.Errorf("store bundle: %w", err)
		}
		if *out != "" {
			if err := writeJSON(*out, b); err != nil {
				return err
			}
		}
		fmt.Println(b.ID)
		return nil

	case "map":
		theme := fs.String("theme", "", "map theme; a sample theme is used when empty")
		out := fs.String("out", "", "write the map JSON to this file instead of stdout")
		if err := fs.Parse(args); err != nil {
			return err
		}
		res, err := deps.MapGen.Generate(ctx, pickTheme(*theme, cfg.MapGen.SampleThemes))
		if err != nil {
			return err
		}
		if *out != "" {
			return writeJSON(*out, res.Map)
		}
		return printJSON(res.Map)

	case "list":
		page := fs.Int("page", 1, "page number")
		size := fs.Int("size", 20, "page size")
		if err := fs.Parse(args); err != nil {
			return err
		}
		result, err := deps.Bundles.List(ctx, repository.NewPagination(*page, *size))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMODEL\tSECONDS\tCREATED")
		for _, s := range result.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Name, s.LLMModel, s.GenerationTimeSeconds, s.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "\npage %d/%d, %d bundles\n", result.Page, result.TotalPages, result.Total)
		return w.Flush()

	case "show":
		id := fs.String("id", "", "bundle id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		b, err := deps.Bundles.GetByID(ctx, *id)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("bundle %s not found", *id)
		}
		return printJSON(b)

	case "delete":
		id := fs.String("id", "", "bundle id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		ok, err := deps.Bundles.Delete(ctx, *id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("bundle %s not found", *id)
		}
		fmt.Println("deleted", *id)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return errors.New("unknown command")
	}
}

func pickTheme(theme string, samples []string) string {
	if t := strings.TrimSpace(theme); t != "" {
		return t
	}
	if len(samples) == 0 {
		return "an ancient dungeon beneath a forgotten city"
	}
	return samples[rand.IntN(len(samples))]
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
