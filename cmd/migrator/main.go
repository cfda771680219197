// Package main provides the database migration tool for depgraph.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Build-time version information, set with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	name      = "migrator"
)

var errUnknownCommand = errors.New("unknown command")

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s (commit %s, built %s)\n", name, Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	if *showHelp || flag.NArg() < 1 {
		printUsage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner, err := NewMigrationRunner(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to create migration runner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = executeCommand(flag.Arg(0), runner, os.Stdin)

	_ = runner.Close()

	if err != nil {
		logger.Error("Migration failed", slog.String("error", err.Error()))
		os.Exit(1) //nolint:gocritic // runner already closed
	}
}

// executeCommand runs one migrator command. drop asks for confirmation on in.
func executeCommand(command string, runner MigrationRunner, in io.Reader) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		fmt.Print("WARNING: This will drop all tables. Are you sure? (y/N): ")

		answer, _ := bufio.NewReader(in).ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(answer), "y") {
			return runner.Drop()
		}

		fmt.Println("Operation cancelled.")

		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, command)
	}
}

func printUsage() {
	fmt.Printf(`%s v%s - database migration tool for depgraph

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up       Apply all pending migrations
    down     Roll back the last migration
    status   Show migration status
    version  Show current migration version
    drop     Drop all tables (requires confirmation)

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT VARIABLES:
    DATABASE_URL     PostgreSQL connection string (required)
    MIGRATION_TABLE  Migration tracking table (default: schema_migrations)
`, name, Version, name)
}
