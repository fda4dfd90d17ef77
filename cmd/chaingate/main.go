package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jroosing/chaingate/internal/config"
	"github.com/jroosing/chaingate/internal/runner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values.
type cliFlags struct {
	configPath string
	host       string
	port       int
	workers    int
	jsonLogs   bool
	debug      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file (takes precedence over CHAINGATE_CONFIG)")
	flag.StringVar(&f.host, "host", "", "Override listen host")
	flag.IntVar(&f.port, "port", 0, "Override listen port")
	flag.IntVar(&f.workers, "workers", -1, "Override dispatch worker count (-1 means use config)")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.host != "" {
		cfg.Listen.Host = f.host
	}
	if f.port != 0 {
		cfg.Listen.Port = f.port
	}
	if f.workers >= 0 {
		cfg.Admission.WorkerCount = f.workers
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := runner.Configure(cfg.Logging)
	logger.Info("chaingate starting",
		"listen", fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.Port),
		"endpoints", cfg.Upstream.Endpoints,
		"workers", cfg.Admission.WorkerCount,
	)

	r := runner.NewRunner(logger)
	if err := r.Run(cfg); err != nil {
		return fmt.Errorf("gateway exited with error: %w", err)
	}
	logger.Info("chaingate stopped")
	return nil
}
