// Command assetrepo manages an asset repository from the command line.
//
// Usage:
//
//	assetrepo [-config path] [-log-level LEVEL] <command> [args]
//
// Run "assetrepo help" for the list of commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/pkg/config"
	"github.com/marmos91/assetrepo/pkg/repository"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/assetrepo/config.yaml)")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	quiet := flag.Bool("quiet", false, "Do not print transfer progress")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	name, args := args[0], args[1:]
	if name == "help" {
		usage()
		return
	}
	if name == "init" {
		if err := runInit(*configPath, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	if err := run(*configPath, *logLevel, *quiet, name, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string, quiet bool, name string, cmd command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if name == "metrics" {
		cfg.Metrics.Enabled = true
	}
	if err := config.ConfigureLogging(&cfg.Logging); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The healthcheck needs the repository, which needs the metrics
	var repo *repository.Repository
	m := config.InitializeMetrics(cfg, func(ctx context.Context) error {
		if repo == nil {
			return fmt.Errorf("repository not ready")
		}
		return repo.Store().Healthcheck(ctx)
	})

	repo, err = config.NewRepository(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close repository: %v", err)
		}
	}()

	if !quiet {
		repo.AddListener(printProgress)
	}

	logger.Debug("Running %s with %s store", name, cfg.Store.Type)
	return cmd.run(ctx, &env{repo: repo, metrics: m}, args)
}

func runInit(configPath string, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := configPath
	if path == "" {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: assetrepo [flags] <command> [args]\n\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "init", "[-force]  write a default config file")
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}
