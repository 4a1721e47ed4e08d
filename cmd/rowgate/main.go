// Command rowgate serves generic CRUD over HTTP for the tables of a
// Postgres, MySQL, SQLite or SQL Server database.
//
//	rowgate serve    [flags]           run the HTTP server
//	rowgate tables   [flags]           list visible tables
//	rowgate describe [flags] <table>   print a table's columns and key
//	rowgate snapshot [flags] [list|save|show <id>]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/koustreak/rowgate/internal/app"
	"github.com/koustreak/rowgate/internal/config"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/logger"
)

const usage = `usage: rowgate <command> [flags] [args]

commands:
  serve                 run the HTTP server
  tables                list visible tables
  describe <table>      print a table's columns and primary key
  snapshot [list]       list archived schema snapshots
  snapshot save         archive the current schema summary
  snapshot show <id>    print an archived snapshot

run "rowgate <command> -h" for flags
`

type options struct {
	configPath string
	overrides  config.Overrides
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "Config file (YAML)")
	fs.StringVar(&o.overrides.Driver, "driver", "", "Database driver: postgres, mysql, sqlite or sqlserver")
	fs.StringVar(&o.overrides.DSN, "dsn", "", "Database connection string; ${VAR} is expanded")
	fs.StringVar(&o.overrides.Addr, "addr", "", "HTTP listen address (serve only)")
	fs.StringVar(&o.overrides.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rowgate: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	var opts options
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	opts.register(fs)

	switch cmd {
	case "serve", "tables", "describe", "snapshot":
	case "-h", "--help", "help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return err
	}
	cfg.Apply(opts.overrides)

	log := logger.New(cfg.LoggerConfig(os.Stderr))
	ctx = log.WithContext(ctx)

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		return a.Server().Run(ctx)
	case "tables":
		return listTables(ctx, a, out)
	case "describe":
		if fs.NArg() != 1 {
			return errs.New(errs.ErrKindInvalidValue, "describe takes exactly one table name")
		}
		return describe(ctx, a, fs.Arg(0), out)
	default:
		return snapshotCmd(ctx, a, fs.Args(), out)
	}
}

func listTables(ctx context.Context, a *app.App, out io.Writer) error {
	tables, err := a.Service.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		fmt.Fprintln(out, t)
	}
	return nil
}

func describe(ctx context.Context, a *app.App, table string, out io.Writer) error {
	t, err := a.Service.Describe(ctx, table)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tNATIVE\tNULLABLE\tKEY")
	for _, c := range t.Columns() {
		key := ""
		if t.IsPrimaryKey(c.Name) {
			key = "PK"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", c.Name, c.Type, c.NativeType, c.Nullable, key)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !t.HasPrimaryKey() {
		fmt.Fprintln(out, "\n(no primary key: read and insert only)")
	}
	return nil
}

func snapshotCmd(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if a.Snapshots == nil {
		return errs.New(errs.ErrKindInvalidValue, "snapshots need a snapshot section in the config file")
	}

	action := "list"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "list":
		infos, err := a.Snapshots.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTAKEN\tSIZE\tKEY")
		for _, s := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.TakenAt.Format("2006-01-02 15:04:05"), s.Size, s.Key)
		}
		return tw.Flush()

	case "save":
		info, err := a.Snapshots.Save(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s (%d bytes)\n", info.Key, info.Size)
		if info.URL != "" {
			fmt.Fprintln(out, info.URL)
		}
		return nil

	case "show":
		if len(args) != 2 {
			return errs.New(errs.ErrKindInvalidValue, "snapshot show takes a snapshot id")
		}
		doc, err := a.Snapshots.Load(ctx, args[1])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)

	default:
		return errs.Newf(errs.ErrKindInvalidValue, "unknown snapshot action %q", action)
	}
}
