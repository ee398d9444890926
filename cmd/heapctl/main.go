// Command heapctl inspects and drives a heap store database directory.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/example/heapstore/internal/api"
	"github.com/example/heapstore/internal/catalog"
	"github.com/example/heapstore/internal/config"
	"github.com/example/heapstore/internal/exec"
	"github.com/example/heapstore/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}
	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "create":
		err = runCreate(rest, stdout)
	case "load":
		err = runLoad(rest, stdout)
	case "scan":
		err = runScan(rest, stdout)
	case "agg":
		err = runAgg(rest, stdout)
	case "explain":
		err = runExplain(rest, stdout)
	case "dump":
		err = runDump(rest, stdout)
	case "meta":
		err = runMeta(rest, stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		usage(stderr)
		return 1
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "heapstore control utility")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  heapctl create [flags] <dir> <table> \"<field type [pk]>, ...\"")
	fmt.Fprintln(w, "  heapctl load [flags] <dir> <table> <file.csv>")
	fmt.Fprintln(w, "  heapctl scan [flags] <dir> <table>")
	fmt.Fprintln(w, "  heapctl agg [flags] -op <MIN|MAX|SUM|AVG|COUNT> -field <f> [-group <g>] <dir> <table>")
	fmt.Fprintln(w, "  heapctl explain [flags] -op <op> -field <f> [-group <g>] <dir> <table>")
	fmt.Fprintln(w, "  heapctl dump [flags] <dir>")
	fmt.Fprintln(w, "  heapctl meta [--json] <dir>")
}

// engineFlags are accepted by every command that opens a database.
type engineFlags struct {
	pageSize    *int
	cachePages  *int
	lockTimeout *string
	logLevel    *string
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *engineFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	ef := &engineFlags{
		pageSize:    fs.Int("page-size", config.DefaultPageSize, "heap page size in bytes"),
		cachePages:  fs.Int("cache-pages", config.DefaultCachePages, "buffer pool capacity in pages"),
		lockTimeout: fs.String("lock-timeout", "0s", "page lock wait limit (0 waits forever)"),
		logLevel:    fs.String("log-level", "warn", "log level: debug, info, warn, error"),
	}
	return fs, ef
}

func (ef *engineFlags) config() (config.Config, error) {
	cfg := config.Default()
	cfg.PageSize = *ef.pageSize
	cfg.CachePages = *ef.cachePages
	timeout, err := parseDuration(*ef.lockTimeout)
	if err != nil {
		return cfg, err
	}
	cfg.LockTimeout = timeout
	level, err := config.ParseLevel(*ef.logLevel)
	if err != nil {
		return cfg, err
	}
	cfg.LogLevel = level
	return cfg, cfg.Validate()
}

func (ef *engineFlags) open(dir string) (*api.Database, error) {
	cfg, err := ef.config()
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel, os.Stderr)
	return api.Open(dir, cfg)
}

func parseArgs(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != want {
		fs.Usage()
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", fs.Name(), want, fs.NArg())
	}
	return fs.Args(), nil
}

func runCreate(args []string, stdout io.Writer) error {
	fs, ef := newFlagSet("create", stdout)
	pos, err := parseArgs(fs, args, 3)
	if err != nil {
		return err
	}
	name, schema, pk, err := catalog.ParseSchemaLine(fmt.Sprintf("%s (%s)", pos[1], pos[2]))
	if err != nil {
		return err
	}
	db, err := ef.open(pos[0])
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.CreateTable(name, schema, pk); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Created table %s (%s)\n", name, schema)
	return nil
}

func runLoad(args []string, stdout io.Writer) (err error) {
	fs, ef := newFlagSet("load", stdout)
	pos, err := parseArgs(fs, args, 3)
	if err != nil {
		return err
	}
	f, err := os.Open(pos[2])
	if err != nil {
		return err
	}
	defer f.Close()

	db, err := ef.open(pos[0])
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, db.Close()) }()

	ctx := context.Background()
	tx := db.Begin()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows := 0
	for {
		record, readErr := r.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return errors.Join(readErr, db.Rollback(tx))
		}
		if _, err := db.InsertValues(ctx, tx, pos[1], record); err != nil {
			return errors.Join(fmt.Errorf("row %d: %w", rows+1, err), db.Rollback(tx))
		}
		rows++
	}
	if err := db.Commit(tx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Loaded %s row(s) into %s\n", humanize.Comma(int64(rows)), pos[1])
	return nil
}

func runScan(args []string, stdout io.Writer) error {
	fs, ef := newFlagSet("scan", stdout)
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	db, err := ef.open(pos[0])
	if err != nil {
		return err
	}
	defer db.Close()

	tx := db.Begin()
	res, err := db.ScanResult(context.Background(), tx, pos[1])
	if err != nil {
		return errors.Join(err, db.Rollback(tx))
	}
	if err := db.Commit(tx); err != nil {
		return err
	}
	renderResult(stdout, res)
	return nil
}

type aggFlags struct {
	op    *string
	field *string
	group *string
}

func newAggFlagSet(name string, out io.Writer) (*flag.FlagSet, *engineFlags, *aggFlags) {
	fs, ef := newFlagSet(name, out)
	af := &aggFlags{
		op:    fs.String("op", "COUNT", "aggregate: MIN, MAX, SUM, AVG or COUNT"),
		field: fs.String("field", "", "field to aggregate"),
		group: fs.String("group", "", "optional group-by field"),
	}
	return fs, ef, af
}

func (af *aggFlags) query(table string) (api.AggregateQuery, error) {
	op, err := exec.ParseOp(*af.op)
	if err != nil {
		return api.AggregateQuery{}, err
	}
	if *af.field == "" {
		return api.AggregateQuery{}, errors.New("-field is required")
	}
	return api.AggregateQuery{Table: table, Field: *af.field, GroupBy: *af.group, Op: op}, nil
}

func runAgg(args []string, stdout io.Writer) error {
	fs, ef, af := newAggFlagSet("agg", stdout)
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	q, err := af.query(pos[1])
	if err != nil {
		return err
	}
	db, err := ef.open(pos[0])
	if err != nil {
		return err
	}
	defer db.Close()

	tx := db.Begin()
	res, err := db.Aggregate(context.Background(), tx, q)
	if err != nil {
		return errors.Join(err, db.Rollback(tx))
	}
	if err := db.Commit(tx); err != nil {
		return err
	}
	renderResult(stdout, res)
	return nil
}

func runExplain(args []string, stdout io.Writer) error {
	fs, ef, af := newAggFlagSet("explain", stdout)
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	q, err := af.query(pos[1])
	if err != nil {
		return err
	}
	db, err := ef.open(pos[0])
	if err != nil {
		return err
	}
	defer db.Close()

	plan, err := db.Explain(context.Background(), q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func runDump(args []string, stdout io.Writer) error {
	fs, ef := newFlagSet("dump", stdout)
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	db, err := ef.open(pos[0])
	if err != nil {
		return err
	}
	defer db.Close()

	meta, err := db.DatabaseMeta()
	if err != nil {
		return err
	}
	if len(meta.Tables) == 0 {
		fmt.Fprintln(stdout, "No tables defined")
		return nil
	}
	ctx := context.Background()
	for _, table := range meta.Tables {
		tx := db.Begin()
		rows, err := db.Scan(ctx, tx, table.Name)
		if err != nil {
			return errors.Join(err, db.Rollback(tx))
		}
		if err := db.Commit(tx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, titleStyle.Render("Table "+table.Name))
		fmt.Fprintf(stdout, "  %s row(s), %s page(s), %s on disk, %s full\n",
			humanize.Comma(int64(len(rows))),
			humanize.Comma(int64(table.Pages)),
			humanize.IBytes(uint64(table.Bytes)),
			fillFactor(len(rows), table.Pages, table.SlotsPerPage))
		for _, col := range table.Columns {
			line := fmt.Sprintf("  - %s %s", col.Name, strings.ToUpper(col.Type))
			if col.IsPrimaryKey {
				line += " PRIMARY KEY"
			}
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

// fillFactor renders occupied slots as a percentage of all slots.
func fillFactor(rows, pages, slotsPerPage int) string {
	total := int64(pages) * int64(slotsPerPage)
	if total == 0 {
		return "0.0%"
	}
	pct := decimal.NewFromInt(int64(rows)).Mul(decimal.NewFromInt(100)).DivRound(decimal.NewFromInt(total), 1)
	return pct.StringFixed(1) + "%"
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
