package main

import (
	"fmt"
	"os"

	"github.com/flowmetric-io/flowmetric/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Handle version flag before subcommand parsing
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("flowmetricd version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Check for subcommand
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "run":
		runWorker(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	case "version":
		fmt.Printf("flowmetricd version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: flowmetricd <command> [options]

Commands:
  run         Start the stream worker with the configured metrics backend
  check       Validate configuration and exit
  version     Print version information

Run 'flowmetricd <command> --help' for more information on a command.`)
}

func runCheck(args []string) {
	fs := newFlagSet("check", `Usage: flowmetricd check [options]

Load and validate the configuration, then exit.

Options:`)
	configPath := fs.String("config", "", "Path to configuration file")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("config ok: %d broker(s), %d topic(s), backend %s\n",
		len(cfg.Kafka.Brokers), len(cfg.Kafka.Topics), cfg.Observability.Backend)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
