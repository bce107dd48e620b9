package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("retentionctl version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch subcommand := os.Args[1]; subcommand {
	case "plan":
		err = runPlan(os.Args[2:], os.Stdout, os.Stderr)
	case "watch":
		err = runWatch(os.Args[2:], os.Stderr)
	case "version":
		fmt.Printf("retentionctl version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: retentionctl <command> [options]

Commands:
  plan        Compute retention floors for a scenario
  watch       Serve retention floors for a scenario as Prometheus metrics
  version     Print version information

Run 'retentionctl <command> --help' for more information on a command.`)
}
