// Package main provides the lowrank CLI.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/lowrank-ml/lowrank/internal/config"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("lowrank %s\n", version)
	case "run":
		runCmd(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("lowrank - rank pruning for factorized networks")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  run -config <file>    Run a pruning experiment from a YAML config")
	fmt.Println("  version               Show version")
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "experiment.yaml", "Path to experiment config file")
	verbose := fs.Bool("v", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if err := runExperiment(cfg, logger); err != nil {
		logger.Error("experiment failed", "error", err)
		os.Exit(1)
	}
}
