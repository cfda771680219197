package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/depgraph-io/depgraph/internal/depgraph"
)

func depsSet(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowSubcommandHelp(c)
	}

	a, err := initApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	branch := c.String("branch")

	result, err := a.resolver().DependencySet(c.Context, depgraph.SetRequest{
		Packages: c.Args().Slice(),
		Branch:   branch,
		Archs:    a.archsFor(branch, c.StringSlice("arch")),
	})
	if err != nil {
		return err
	}

	return a.render(result.Entries, func(t table.Writer) {
		t.AppendHeader(table.Row{"Package", "Binary", "EVR", "Archs", "Requires"})

		total := 0

		for _, entry := range result.Entries {
			for _, dep := range entry.Depends {
				t.AppendRow(table.Row{
					entry.Package,
					dep.Name,
					evr(dep.Epoch, dep.Version, dep.Release),
					joined(dep.Archs),
					joined(dep.Requires),
				})
			}

			total += len(entry.Depends)
		}

		t.AppendFooter(table.Row{"Total", total})
	})
}

func init() {
	commands = append(commands, &cli.Command{
		Name:      "deps-set",
		Aliases:   []string{"ds"},
		Usage:     "List every binary package needed to build source packages",
		ArgsUsage: "<package>...",
		Flags: []cli.Flag{
			branchFlag(),
			archFlag(),
		},
		Action: depsSet,
	})
}
