package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/depgraph-io/depgraph/internal/conflicts"
)

func misconflict(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowSubcommandHelp(c)
	}

	a, err := initApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	branch, ok := a.platforms.ResolveBranch(c.String("branch"))
	if !ok {
		return fmt.Errorf("%w: unknown branch %q", conflicts.ErrValidation, c.String("branch"))
	}

	archs := a.archsFor(branch, c.StringSlice("arch"))
	if unknown, hasUnknown := lo.Find(archs, func(arch string) bool { return !a.platforms.IsKnownArch(arch) }); hasUnknown {
		return fmt.Errorf("%w: unknown architecture %q", conflicts.ErrValidation, unknown)
	}

	found, err := conflicts.NewFinder(a.facts, a.logger).Find(c.Context, conflicts.Request{
		Packages: c.Args().Slice(),
		Branch:   branch,
		Archs:    archs,
	})
	if err != nil {
		return err
	}

	return a.render(found, func(t table.Writer) {
		t.AppendHeader(table.Row{"Package", "Conflicts with", "EVR", "Archs", "Files"})

		for _, fc := range found {
			t.AppendRow(table.Row{
				fc.InputPackage,
				fc.ConflictPackage,
				evr(fc.Epoch, fc.Version, fc.Release),
				joined(fc.Archs),
				joined(fc.Files),
			})
		}

		t.AppendFooter(table.Row{"Total", len(found)})
	})
}

func init() {
	commands = append(commands, &cli.Command{
		Name:      "misconflict",
		Aliases:   []string{"mc"},
		Usage:     "Report file conflicts of binary packages that no Conflicts or Obsoletes excuses",
		ArgsUsage: "<package>...",
		Flags: []cli.Flag{
			branchFlag(),
			archFlag(),
		},
		Action: misconflict,
	})
}
