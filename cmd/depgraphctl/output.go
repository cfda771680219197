package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case outputTable, outputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q: use table or json", s)
	}
}

// render writes v as indented JSON, or calls table to fill a go-pretty table.
func (a *app) render(v any, fill func(t table.Writer)) error {
	if a.format == outputJSON {
		return writeJSON(a.out, v)
	}

	t := newTable(a.out)
	fill(t)
	t.Render()

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	return t
}

// evr formats epoch:version-release, omitting a zero epoch.
func evr(epoch int64, version, release string) string {
	if epoch == 0 {
		return version + "-" + release
	}

	return fmt.Sprintf("%d:%s-%s", epoch, version, release)
}

func joined(xs []string) string {
	return strings.Join(xs, ", ")
}
