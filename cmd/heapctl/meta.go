package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/example/heapstore/internal/api"
	"github.com/example/heapstore/internal/config"
)

var errMetaUsage = errors.New("usage: heapctl meta [--json] <dir>")

func parseMetaArgs(args []string) (bool, string, error) {
	fs := flag.NewFlagSet("meta", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return false, "", err
	}
	switch fs.NArg() {
	case 0:
		return false, "", errMetaUsage
	case 1:
		return *jsonOut, fs.Arg(0), nil
	default:
		return false, "", fmt.Errorf("meta: unexpected argument %q", fs.Arg(1))
	}
}

func runMeta(args []string, stdout io.Writer) error {
	jsonOut, dir, err := parseMetaArgs(args)
	if err != nil {
		return err
	}
	meta, err := api.LoadDatabaseMeta(dir, config.Default())
	if err != nil {
		return err
	}
	if jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}
	fmt.Fprintf(stdout, "%s (page size %s)\n", titleStyle.Render(meta.Database), humanize.IBytes(uint64(meta.PageSize)))
	for _, t := range meta.Tables {
		fmt.Fprintf(stdout, "  %s: %d column(s), %s page(s), %d slot(s) per page\n",
			t.Name, len(t.Columns), humanize.Comma(int64(t.Pages)), t.SlotsPerPage)
	}
	return nil
}
