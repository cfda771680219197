package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/depgraph-io/depgraph/internal/depgraph"
)

func buildDeps(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowSubcommandHelp(c)
	}

	a, err := initApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	branch := c.String("branch")

	result, err := a.resolver().Resolve(c.Context, depgraph.Request{
		Packages:        c.Args().Slice(),
		Branch:          branch,
		Archs:           a.archsFor(branch, c.StringSlice("arch")),
		Depth:           c.Int("depth"),
		DependencyType:  depgraph.DependencyType(c.String("dptype")),
		Direction:       depgraph.Direction(c.String("direction")),
		Leaf:            c.String("leaf"),
		ACL:             c.String("acl"),
		FiniteOnly:      c.Bool("finite"),
		FilterByPackage: c.StringSlice("filter-by-package"),
		FilterBySource:  c.String("filter-by-source"),
		OneAndHalf:      c.Bool("oneandhalf"),
	})
	if err != nil {
		return err
	}

	return a.render(result.Records, func(t table.Writer) {
		t.AppendHeader(table.Row{"#", "Depth", "Package", "EVR", "Archs", "Cycle", "Depends on"})

		for i, rec := range result.Records {
			t.AppendRow(table.Row{
				i + 1,
				rec.Depth,
				rec.Name,
				evr(rec.Epoch, rec.Version, rec.Release),
				joined(rec.Archs),
				joined(rec.Cycle),
				joined(rec.DependsOn),
			})
		}

		t.AppendFooter(table.Row{"", "", "Total", len(result.Records)})
	})
}

func init() {
	commands = append(commands, &cli.Command{
		Name:      "build-deps",
		Aliases:   []string{"bd"},
		Usage:     "Resolve the ordered build dependency list of source packages",
		ArgsUsage: "<package>...",
		Flags: []cli.Flag{
			branchFlag(),
			archFlag(),
			&cli.IntFlag{
				Name:    "depth",
				Aliases: []string{"d"},
				Value:   1,
				Usage:   "Expansion depth",
			},
			&cli.StringFlag{
				Name:  "dptype",
				Value: string(depgraph.DependencyBoth),
				Usage: "Require declarations to follow: source, binary or both",
			},
			&cli.StringFlag{
				Name:  "direction",
				Value: string(depgraph.DirectionRequirements),
				Usage: "requirements or dependents",
			},
			&cli.StringFlag{
				Name:  "leaf",
				Usage: "Keep only the packages the named package depends on",
			},
			&cli.StringFlag{
				Name:  "acl",
				Usage: "Keep only packages whose ACL contains this maintainer",
			},
			&cli.BoolFlag{
				Name:  "finite",
				Usage: "Keep only top-level build targets, packages no other result package requires",
			},
			&cli.BoolFlag{
				Name:  "oneandhalf",
				Usage: "Resolve depth 2 keeping only level-2 packages required by level 1",
			},
			&cli.StringSliceFlag{
				Name:  "filter-by-package",
				Usage: "Keep only packages requiring something every named binary provides",
			},
			&cli.StringFlag{
				Name:  "filter-by-source",
				Usage: "Keep only packages requiring something every binary of this source provides",
			},
		},
		Action: buildDeps,
	})
}

func branchFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "branch",
		Aliases:  []string{"b"},
		Usage:    "Branch name or alias",
		Required: true,
	}
}

func archFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "arch",
		Aliases: []string{"a"},
		Usage:   "Architecture, repeatable (default: the branch's default set)",
	}
}
