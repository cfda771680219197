package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/depgraph-io/depgraph/internal/rpm"
)

// vercmp compares two [epoch:]version[-release] strings and prints -1, 0 or 1.
// It needs no store.
func vercmp(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}

	first, second := c.Args().Get(0), c.Args().Get(1)
	result := rpm.CompareEVR(rpm.ParseEVR(first), rpm.ParseEVR(second))

	format, err := parseOutputFormat(c.String("output"))
	if err != nil {
		return err
	}

	if format == outputJSON {
		return writeJSON(c.App.Writer, map[string]any{
			"first":  first,
			"second": second,
			"result": result,
		})
	}

	_, err = fmt.Fprintln(c.App.Writer, result)

	return err
}

func init() {
	commands = append(commands, &cli.Command{
		Name:      "vercmp",
		Usage:     "Compare two RPM versions",
		ArgsUsage: "<[epoch:]version[-release]> <[epoch:]version[-release]>",
		Action:    vercmp,
	})
}
