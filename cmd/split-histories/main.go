// split-histories splits hand history files from the command line, either
// one file (-source) or everything under a root.
//
// Configuration comes from -config when given, the environment otherwise.
// The JSON report goes to stdout and the logs to stderr. The exit status is
// 1 when any source failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/pkrsplitter/internal/config"
	"github.com/Lllllllleong/pkrsplitter/internal/models"
	"github.com/Lllllllleong/pkrsplitter/internal/services"
	"github.com/Lllllllleong/pkrsplitter/internal/splitter"
)

var (
	configFlag = flag.String("config", "", "Path to config.yaml (default: read the environment)")
	rootFlag   = flag.String("root", "", "Root to split (default: the configured raw prefix)")
	modeFlag   = flag.String("mode", "", "always | skip-if-any-file-exists | skip-if-ever-split")
	sourceFlag = flag.String("source", "", "Split this single file instead of a whole root")
)

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 2
	}

	rt, err := services.NewRuntime(ctx, cfg)
	if err != nil {
		slog.Error("Initialization failed", "error", err)
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("Failed to close clients", "error", err)
		}
	}()

	if *sourceFlag != "" {
		return splitSource(ctx, rt, *sourceFlag)
	}

	f, err := services.NewBatchSplitterWithRuntime(rt)
	if err != nil {
		slog.Error("Initialization failed", "error", err)
		return 1
	}
	res, err := f.Process(ctx, &models.BatchRequest{Root: *rootFlag, Mode: *modeFlag})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Batch failed: %v\n", err)
		return 1
	}
	if err := printJSON(res); err != nil {
		return 1
	}
	if res.Failed > 0 {
		return 1
	}
	return 0
}

func splitSource(ctx context.Context, rt *services.Runtime, source string) int {
	mode, err := splitter.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	out, splitErr := rt.Splitter.Split(ctx, source, mode)
	report := &splitter.Report{
		Root:     source,
		Mode:     mode,
		Outcomes: []splitter.Outcome{{Result: out, Err: splitErr}},
	}
	if err := printJSON(services.ToBatchResponse(report)); err != nil || splitErr != nil {
		return 1
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	if *configFlag != "" {
		return config.Load(*configFlag)
	}
	return config.FromEnv()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("Failed to write report", "error", err)
		return err
	}
	return nil
}
