// Package main provides depgraphctl, the operator CLI of the depgraph service.
//
// depgraphctl runs the resolver and the conflict finder directly against a facts store,
// issues API keys and seeds a database from a YAML fixture.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/depgraph-io/depgraph/internal/depgraph"
	"github.com/depgraph-io/depgraph/internal/facts"
	"github.com/depgraph-io/depgraph/internal/platform"
	"github.com/depgraph-io/depgraph/internal/storage"
)

const appName = "depgraphctl"

// Version is set at build time with -ldflags.
var Version = "1.0.0-dev"

var (
	errNoDatabase = errors.New("this command needs a database: set --database-url or DATABASE_URL")
	errNoFixture  = errors.New("this command needs a fixture: set --fixture")
)

var commands = []*cli.Command{}

// app holds what a command needs: the facts store and the platform registry.
type app struct {
	facts     facts.Store
	conn      *storage.Connection
	platforms *platform.Registry
	logger    *slog.Logger
	out       io.Writer
	format    outputFormat
}

// initApp opens the store selected by the global flags. The caller must Close the app.
func initApp(c *cli.Context) (*app, error) {
	format, err := parseOutputFormat(c.String("output"))
	if err != nil {
		return nil, err
	}

	logger := newLogger(c)

	platformConfig, err := platform.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading platform config: %w", err)
	}

	cfg := storage.LoadConfig()
	if c.IsSet("database-url") {
		cfg = storage.NewConfig(c.String("database-url"))
	}

	cfg.FixturePath = c.String("fixture")

	store, conn, err := storage.OpenFacts(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		facts:     store,
		conn:      conn,
		platforms: platform.NewRegistry(platformConfig),
		logger:    logger,
		out:       c.App.Writer,
		format:    format,
	}, nil
}

func (a *app) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}

	return nil
}

func (a *app) resolver() *depgraph.Resolver {
	return depgraph.NewResolver(a.facts,
		depgraph.WithLogger(a.logger),
		depgraph.WithPlatforms(a.platforms),
		depgraph.WithConfig(depgraph.LoadConfig()),
	)
}

// archsFor returns archs, or the default architectures of branch when none are given.
func (a *app) archsFor(branch string, archs []string) []string {
	if len(archs) > 0 {
		return archs
	}

	canonical, ok := a.platforms.ResolveBranch(branch)
	if !ok {
		return nil
	}

	return a.platforms.DefaultArchs(canonical)
}

// newLogger logs to stderr so that command output stays machine readable.
func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

func newCLI() *cli.App {
	return &cli.App{
		Name:    appName,
		Usage:   "Query build dependencies and file conflicts of RPM repositories",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "fixture",
				Aliases: []string{"f"},
				Usage:   "Read package facts from a YAML fixture instead of PostgreSQL",
				EnvVars: []string{"DEPGRAPH_FIXTURE_PATH"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   platform.DefaultConfigPath,
				Usage:   "Platform registry configuration",
				EnvVars: []string{platform.ConfigPathEnvVar},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   string(outputTable),
				Usage:   "Output format: table or json",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log resolver and store activity to stderr",
			},
		},
		Commands: commands,
	}
}

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
