// refctl is a CLI for authoring and checking method reference catalogs.
//
// Usage:
//
//	refctl validate <file>
//	refctl search   [--catalog file] [--limit N|all] <query>
//	refctl show     [--catalog file] <id>
//	refctl export   [--catalog file]
//	refctl seed     [--config file] [--catalog file]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/internal/catalog/store"
	"github.com/pydash/methodref/internal/searcher/executor"
	"github.com/pydash/methodref/pkg/config"
	"github.com/pydash/methodref/pkg/logger"
	"github.com/pydash/methodref/pkg/postgres"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "validate":
		err = cmdValidate(args[1:], stdout)
	case "search":
		err = cmdSearch(args[1:], stdout)
	case "show":
		err = cmdShow(args[1:], stdout)
	case "export":
		err = cmdExport(args[1:], stdout)
	case "seed":
		err = cmdSeed(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return 0
		}
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(stderr, "usage error: %v\n", err)
			fmt.Fprintln(stderr, "run 'refctl help' for usage")
			return 2
		}
		var verr *catalog.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(stderr, "catalog is invalid:")
			for _, p := range verr.Problems {
				fmt.Fprintf(stderr, "  - %v\n", p)
			}
			return 1
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// usageError marks bad arguments or flags; run exits 2 for it and 1 for
// everything else.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// newFlagSet builds a subcommand flag set whose parse errors are returned
// rather than printed.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return usageError{fmt.Errorf("%s: %w", fs.Name(), err)}
}

func cmdValidate(args []string, stdout io.Writer) error {
	fs := newFlagSet("validate")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("validate takes exactly one file, got %d arguments", fs.NArg())
	}
	c, err := catalog.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "ok: %d categories, %d entries\n", c.Len(), c.EntryCount())
	return nil
}

func cmdSearch(args []string, stdout io.Writer) error {
	fs := newFlagSet("search")
	catalogPath := fs.String("catalog", "", "catalog file (default: built-in catalog)")
	limitFlag := fs.String("limit", "5", `maximum results, or "all"`)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	limit := -1
	if *limitFlag != "all" {
		n, err := strconv.Atoi(*limitFlag)
		if err != nil || n < 1 {
			return usagef(`--limit must be a positive integer or "all", got %q`, *limitFlag)
		}
		limit = n
	}

	c, err := openCatalog(*catalogPath)
	if err != nil {
		return err
	}

	query := strings.Join(fs.Args(), " ")
	results := executor.New(c).Search(query)
	total := len(results)
	if limit >= 0 && total > limit {
		results = results[:limit]
	}

	if total == 0 {
		fmt.Fprintf(stdout, "no matches for %q\n", query)
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tCATEGORY\tMATCHED ON")
	for i, r := range results {
		e := r.Entry()
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, e.ID, e.Name, r.Category.ID, r.Tier)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nshowing %d of %d match(es)\n", len(results), total)
	return nil
}

func cmdShow(args []string, stdout io.Writer) error {
	fs := newFlagSet("show")
	catalogPath := fs.String("catalog", "", "catalog file (default: built-in catalog)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("show takes exactly one id, got %d arguments", fs.NArg())
	}
	c, err := openCatalog(*catalogPath)
	if err != nil {
		return err
	}

	id := fs.Arg(0)
	if entry, ok := c.FindByID(id); ok {
		categoryID, _ := c.ResolveCategoryForEntry(id)
		fmt.Fprintf(stdout, "ID:          %s\n", entry.ID)
		fmt.Fprintf(stdout, "Name:        %s\n", entry.Name)
		fmt.Fprintf(stdout, "Category:    %s\n", categoryID)
		fmt.Fprintf(stdout, "Description: %s\n", entry.Description)
		if len(entry.Tags) > 0 {
			fmt.Fprintf(stdout, "Tags:        %s\n", strings.Join(entry.Tags, ", "))
		}
		if entry.Example != "" {
			fmt.Fprintf(stdout, "Example:\n  %s\n", strings.ReplaceAll(entry.Example, "\n", "\n  "))
		}
		return nil
	}
	if cat, ok := c.FindCategory(id); ok {
		fmt.Fprintf(stdout, "%s (%s), %d entries\n", cat.Title, cat.ID, len(cat.Entries))
		for _, e := range cat.Entries {
			fmt.Fprintf(stdout, "  %-24s %s\n", e.ID, e.Name)
		}
		return nil
	}
	return fmt.Errorf("no method or category with id %q", id)
}

func cmdExport(args []string, stdout io.Writer) error {
	fs := newFlagSet("export")
	catalogPath := fs.String("catalog", "", "catalog file (default: built-in catalog)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usagef("export takes no arguments, got %q", fs.Args())
	}
	c, err := openCatalog(*catalogPath)
	if err != nil {
		return err
	}
	return catalog.Encode(stdout, c.AllCategories())
}

func cmdSeed(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("seed")
	configPath := fs.String("config", "configs/development.yaml", "path to config file")
	catalogPath := fs.String("catalog", "", "catalog file (default: built-in catalog)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, "text")

	c, err := openCatalog(*catalogPath)
	if err != nil {
		return err
	}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	s := store.New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := s.Seed(ctx, c); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "seeded %d categories, %d entries into %s\n", c.Len(), c.EntryCount(), cfg.Postgres.Database)
	return nil
}

func openCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.LoadEmbedded()
	}
	return catalog.LoadFile(path)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: refctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  validate   Check a catalog file for duplicate ids and missing fields")
	fmt.Fprintln(w, "  search     Run a ranked search against a catalog")
	fmt.Fprintln(w, "  show       Print a method or category by id")
	fmt.Fprintln(w, "  export     Write a catalog as YAML")
	fmt.Fprintln(w, "  seed       Load a catalog into PostgreSQL")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  refctl validate catalogs/python.yaml")
	fmt.Fprintln(w, "  refctl search --limit all upper")
	fmt.Fprintln(w, "  refctl show str-upper")
	fmt.Fprintln(w, "  refctl seed --config configs/development.yaml --catalog catalogs/python.yaml")
}
