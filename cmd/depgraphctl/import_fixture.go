package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/depgraph-io/depgraph/internal/storage"
)

func importFixture(c *cli.Context) error {
	path := strings.TrimSpace(c.String("fixture"))
	if path == "" {
		return errNoFixture
	}

	logger := newLogger(c)

	fixture, err := storage.LoadFixture(path)
	if err != nil {
		return err
	}

	conn, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	stats, err := storage.ImportFixture(c.Context, conn, fixture, logger)
	if err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}

	format, err := parseOutputFormat(c.String("output"))
	if err != nil {
		return err
	}

	if format == outputJSON {
		return writeJSON(c.App.Writer, stats)
	}

	t := newTable(c.App.Writer)
	t.AppendHeader(table.Row{"Rows", "Written"})
	t.AppendRows([]table.Row{
		{"packages", stats.Packages},
		{"snapshot entries", stats.Snapshots},
		{"relations", stats.Relations},
		{"files", stats.Files},
		{"acl", stats.ACL},
	})
	t.Render()

	return nil
}

func init() {
	commands = append(commands, &cli.Command{
		Name:   "import-fixture",
		Usage:  "Write the packages of --fixture into the database at --database-url",
		Action: importFixture,
	})
}
