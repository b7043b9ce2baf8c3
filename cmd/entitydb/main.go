// Package main implements a command line client reading entities through the
// configured catalog.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/acronis/perfkit/entitydb/config"
	"github.com/acronis/perfkit/entitydb/criteria"
	"github.com/acronis/perfkit/entitydb/entity"
	"github.com/acronis/perfkit/entitydb/logger"
	"github.com/acronis/perfkit/entitydb/packer"
	"github.com/acronis/perfkit/entitydb/persist"
	"github.com/acronis/perfkit/entitydb/pool"

	_ "github.com/acronis/perfkit/entitydb/db/sql" // sql connectors
)

// CLI is a struct for command line arguments
type CLI struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose debug information (-v - info, -vv - debug, -vvv - trace)"`
	Config  string `short:"f" long:"config" description:"path to the configuration file, $ENTITYDB_CONFIG or ./entitydb.yaml by default"`

	Entity   string   `short:"e" long:"entity" description:"entity type to read" required:"true"`
	Where    []string `short:"w" long:"where" description:"condition as property=value, also !=, <, <=, >, >= and ~ (like); repeatable, joined with and"`
	OrderBy  []string `short:"o" long:"order-by" description:"order term as property or property desc; repeatable"`
	Limit    int      `short:"l" long:"limit" description:"maximum number of entities to print, 0 for all" default:"0"`
	Depth    int      `long:"fetch-depth" description:"foreign key hops resolved eagerly, -1 for unlimited, default per foreign key" default:"-2"`
	Count    bool     `long:"count" description:"print the number of matching rows only"`
	Distinct string   `long:"distinct" description:"print the distinct values of the given property only"`
	Trace    bool     `long:"trace" description:"print the executed statements"`

	Workers int `short:"c" long:"concurrency" description:"number of goroutines repeating the query when --loops is set" default:"1"`
	Loops   int `long:"loops" description:"repeat the query given amount of times in total and print the rate instead of the result" default:"0"`
}

func parseCLI(args []string) (CLI, error) {
	var cli CLI
	var parser = flags.NewNamedParser("entitydb", flags.Default)
	if _, err := parser.AddGroup("entitydb flags", "Read entities of a configured catalog", &cli); err != nil {
		return cli, err
	}

	if _, err := parser.ParseArgs(args); err != nil {
		return cli, err
	}

	return cli, nil
}

func main() {
	var cli, err = parseCLI(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	var l = logger.NewPlaneLogger(logger.LevelFromVerbosity(len(cli.Verbose)), false)
	if err = run(context.Background(), cli, l, os.Stdout); err != nil {
		l.Error("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cli CLI, l logger.Logger, out io.Writer) error {
	var cfg, path, err = config.Load(cli.Config)
	if err != nil {
		return err
	}
	l.Info("configuration loaded from %s", path)

	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return err
	}

	cfg.Database.SystemLogger = l
	var opts = cfg.Persist
	opts.Logger = l

	var registry = pool.NewRegistry[*persist.Connection](cfg.Pool, func(ctx context.Context, connString string) (*persist.Connection, error) {
		var dbCfg = cfg.Database
		dbCfg.ConnString = connString
		return persist.Open(ctx, dbCfg, catalog, opts)
	}, l)
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			l.Warn("closing connections: %v", closeErr)
		}
	}()

	p, err := registry.Pool(ctx, cfg.Database.ConnString)
	if err != nil {
		return err
	}

	if cli.Loops > 0 {
		var score, err = repeat(ctx, p, cli, l)
		fmt.Fprintln(out, score)
		fmt.Fprintln(out, p.Stats())
		return err
	}

	conn, err := p.Checkout(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cli.Trace {
			for _, r := range conn.Trace() {
				fmt.Fprintln(out, "--", r)
			}
		}
		if checkinErr := p.Checkin(ctx, conn); checkinErr != nil {
			l.Warn("checkin: %v", checkinErr)
		}
		l.Debug("pool: %s", p.Stats())
	}()

	return query(ctx, conn, cli, out)
}

func query(ctx context.Context, conn *persist.Connection, cli CLI, out io.Writer) error {
	var def, err = conn.Catalog().Definition(cli.Entity)
	if err != nil {
		return err
	}

	where, err := parseWhere(def, cli.Where)
	if err != nil {
		return err
	}

	switch {
	case cli.Count:
		var n, err = conn.SelectRowCount(ctx, def.Name, where)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, n)

	case cli.Distinct != "":
		var values, err = conn.SelectValues(ctx, def.Name, cli.Distinct, where, true)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintln(out, v)
		}

	default:
		var s = criteria.Matching(def.Name, where).OrderedBy(cli.OrderBy...)
		if cli.Limit > 0 {
			s = s.Limited(cli.Limit)
		}
		if cli.Depth >= entity.UnlimitedDepth {
			s = s.WithFetchDepth(cli.Depth)
		}

		var entities, err = conn.Select(ctx, s)
		if err != nil {
			return err
		}
		for _, e := range entities {
			printEntity(out, e, "", map[*entity.Entity]bool{})
		}
	}

	return nil
}

// printEntity prints e followed by its resolved references, one level of
// indentation per hop
func printEntity(out io.Writer, e *entity.Entity, indent string, path map[*entity.Entity]bool) {
	fmt.Fprintln(out, e)
	if path[e] {
		return
	}
	path[e] = true
	defer delete(path, e)

	for _, fk := range e.Definition().ForeignKeys() {
		if ref := e.Referenced(fk.ID); ref != nil {
			fmt.Fprintf(out, "%s  %s: ", indent, fk.ID)
			printEntity(out, ref, indent+"  ", path)
		}
	}
}

// operators are tried in order, two character ones first
var operators = []struct {
	token string
	op    criteria.Operator
}{
	{"!=", criteria.NotEqual},
	{">=", criteria.GreaterOrEqual},
	{"<=", criteria.LessOrEqual},
	{"=", criteria.Equal},
	{">", criteria.Greater},
	{"<", criteria.Less},
	{"~", criteria.Like},
}

// parseWhere turns property=value terms into a conjunction, the literal null
// compares with null
func parseWhere(def *entity.Definition, terms []string) (criteria.Condition, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	var conds = make([]criteria.Condition, 0, len(terms))
	for _, term := range terms {
		var cond, err = parseTerm(def, term)
		if err != nil {
			return nil, fmt.Errorf("where '%s': %w", term, err)
		}
		conds = append(conds, cond)
	}

	if len(conds) == 1 {
		return conds[0], nil
	}

	return criteria.And(conds...), nil
}

func parseTerm(def *entity.Definition, term string) (criteria.Condition, error) {
	for _, o := range operators {
		var i = strings.Index(term, o.token)
		if i <= 0 {
			continue
		}

		var p, err = def.Property(strings.TrimSpace(term[:i]))
		if err != nil {
			return nil, err
		}

		var raw = strings.TrimSpace(term[i+len(o.token):])
		if raw == "null" {
			return criteria.Where(p, o.op, nil), nil
		}

		v, err := parseValue(p, raw)
		if err != nil {
			return nil, err
		}

		return criteria.Where(p, o.op, v), nil
	}

	return nil, fmt.Errorf("no comparison operator")
}

// parseValue reads a command line literal as a value of p. Booleans are
// parsed natively, the codec applies when the condition is rendered.
func parseValue(p *entity.Property, raw string) (interface{}, error) {
	if p.Type == entity.Boolean {
		return strconv.ParseBool(raw)
	}

	return packer.Coerce(p, raw)
}
