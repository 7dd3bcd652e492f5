// odooctl runs one-off calls against an Odoo database from the shell.
//
// Connection settings come from a YAML file (--config, or ODOO_CONFIG) and
// the ODOO_* environment variables. JSON arguments may carry comments and
// trailing commas. Results are printed as JSON on stdout.
//
//	odooctl search res.partner --domain '[["is_company", "=", true]]' --fields name,email
//	odooctl get res.partner 7 email
//	odooctl call res.partner name_search --args '["acme"]' --kwargs '{"limit": 5}'
//	odooctl write res.partner --ids 7 --values '{"category_id": [[4, 3, 0]]}'
//	odooctl report sale.report_saleorder --ids 12,13 --out orders.pdf
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/ilcreatore32/odooconnect"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, session *odooconnect.Session, args []string, out io.Writer) error
}

var commands = []command{
	{"search", "search MODEL [--domain JSON] [--fields F,...] [--limit N] [--offset N] [--order SPEC]", "search_read matching records", runSearch},
	{"count", "count MODEL [--domain JSON]", "count matching records", runCount},
	{"get", "get MODEL ID FIELD", "read one field of one record", runGet},
	{"call", "call MODEL METHOD [--ids ID,...] [--args JSON] [--kwargs JSON]", "call any model method", runCall},
	{"write", "write MODEL --ids ID,... --values JSON", "write values to records", runWrite},
	{"report", "report NAME --ids ID,... [--out FILE]", "download a PDF report", runReport},
}

func run(argv []string, out io.Writer) error {
	var configPath string
	var timeout time.Duration
	var verbose bool

	flagSet := pflag.NewFlagSet("odooctl", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML connection file (default: $ODOO_CONFIG)")
	flagSet.DurationVar(&timeout, "timeout", 0, "overall deadline for the command, 0 for none")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr in development format")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("missing command")
	}
	cmd, ok := lookup(rest[0])
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := odooconnect.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.LoggerEnv = odooconnect.EnvDevelopment
	}
	var opts []odooconnect.Option
	if !verbose {
		logger, err := zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
		if err == nil {
			defer func() { _ = logger.Sync() }()
			opts = append(opts, odooconnect.WithLogger(logger))
		}
	}

	session, err := odooconnect.NewFromConfig(cfg, opts...)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return cmd.run(ctx, session, rest[1:], out)
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "odooctl runs one-off calls against an Odoo database.\n\nUsage:\n  odooctl [flags] COMMAND [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n           %s\n", c.name, c.summary, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

func runSearch(ctx context.Context, session *odooconnect.Session, args []string, out io.Writer) error {
	var domainArg, order string
	var fields []string
	var limit, offset int

	flagSet := pflag.NewFlagSet("search", pflag.ContinueOnError)
	flagSet.StringVar(&domainArg, "domain", "[]", "search domain as a JSON list")
	flagSet.StringSliceVar(&fields, "fields", nil, "fields to read (default: name)")
	flagSet.IntVar(&limit, "limit", 0, "maximum number of records")
	flagSet.IntVar(&offset, "offset", 0, "number of records to skip")
	flagSet.StringVar(&order, "order", "", "sort specification, e.g. \"name desc\"")
	model, rest, err := parseModel(flagSet, args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	domain, err := parseDomain(domainArg)
	if err != nil {
		return err
	}

	rows, err := session.Env(model).SearchRead(ctx, domain, fields, &odooconnect.Options{
		Limit:  limit,
		Offset: offset,
		Order:  order,
	})
	if err != nil {
		return err
	}
	return printJSON(out, rows)
}

func runCount(ctx context.Context, session *odooconnect.Session, args []string, out io.Writer) error {
	var domainArg string
	flagSet := pflag.NewFlagSet("count", pflag.ContinueOnError)
	flagSet.StringVar(&domainArg, "domain", "[]", "search domain as a JSON list")
	model, _, err := parseModel(flagSet, args)
	if err != nil {
		return err
	}
	domain, err := parseDomain(domainArg)
	if err != nil {
		return err
	}

	n, err := session.Env(model).SearchCount(ctx, domain)
	if err != nil {
		return err
	}
	return printJSON(out, n)
}

func runGet(ctx context.Context, session *odooconnect.Session, args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
	model, rest, err := parseModel(flagSet, args)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return fmt.Errorf("usage: odooctl get MODEL ID FIELD")
	}
	var id int64
	if _, err := fmt.Sscan(rest[0], &id); err != nil || id <= 0 {
		return fmt.Errorf("invalid record id %q", rest[0])
	}

	value, err := session.Env(model).Browse(id).Get(ctx, rest[1])
	if err != nil {
		return err
	}
	return printJSON(out, value)
}

func runCall(ctx context.Context, session *odooconnect.Session, args []string, out io.Writer) error {
	var ids []int64
	var argsArg, kwargsArg string
	flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
	flagSet.Int64SliceVar(&ids, "ids", nil, "record ids the method runs on (omit for model-level methods)")
	flagSet.StringVar(&argsArg, "args", "[]", "positional arguments as a JSON list")
	flagSet.StringVar(&kwargsArg, "kwargs", "{}", "keyword arguments as a JSON object")
	model, rest, err := parseModel(flagSet, args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: odooctl call MODEL METHOD")
	}

	positional, err := decodeList(argsArg)
	if err != nil {
		return fmt.Errorf("--args: %w", err)
	}
	kwargs, err := decodeObject(kwargsArg)
	if err != nil {
		return fmt.Errorf("--kwargs: %w", err)
	}

	result, err := session.Env(model).Call(ctx, rest[0], ids, positional, kwargs)
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func runWrite(ctx context.Context, session *odooconnect.Session, args []string, out io.Writer) error {
	var ids []int64
	var valuesArg string
	flagSet := pflag.NewFlagSet("write", pflag.ContinueOnError)
	flagSet.Int64SliceVar(&ids, "ids", nil, "record ids to write")
	flagSet.StringVar(&valuesArg, "values", "", "field values as a JSON object")
	model, _, err := parseModel(flagSet, args)
	if err != nil {
		return err
	}

	values, err := decodeObject(valuesArg)
	if err != nil {
		return fmt.Errorf("--values: %w", err)
	}

	ok, err := session.Env(model).Write(ctx, ids, odooconnect.Data(values))
	if err != nil {
		return err
	}
	return printJSON(out, ok)
}

func runReport(ctx context.Context, session *odooconnect.Session, args []string, out io.Writer) error {
	var ids []int64
	var outPath string
	flagSet := pflag.NewFlagSet("report", pflag.ContinueOnError)
	flagSet.Int64SliceVar(&ids, "ids", nil, "record ids to print")
	flagSet.StringVar(&outPath, "out", "", "write the PDF here instead of stdout")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: odooctl report NAME --ids ID,...")
	}

	pdf, err := session.DownloadReport(ctx, flagSet.Arg(0), ids)
	if err != nil {
		return err
	}
	if outPath == "" {
		_, err = out.Write(pdf)
		return err
	}
	if err := os.WriteFile(outPath, pdf, 0o644); err != nil {
		return err
	}
	return printJSON(out, map[string]any{"path": outPath, "bytes": len(pdf)})
}

// parseModel parses flags and takes the first positional argument as the
// model name.
func parseModel(flagSet *pflag.FlagSet, args []string) (odooconnect.ModelName, []string, error) {
	if err := flagSet.Parse(args); err != nil {
		return "", nil, err
	}
	if flagSet.NArg() == 0 {
		return "", nil, fmt.Errorf("%s: missing MODEL", flagSet.Name())
	}
	rest := flagSet.Args()
	return odooconnect.ModelName(rest[0]), rest[1:], nil
}

// parseDomain accepts a JSON list whose items are operator strings ("|",
// "&", "!") or condition lists.
func parseDomain(raw string) (odooconnect.Domain, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("--domain: %w", err)
	}
	domain := make(odooconnect.Domain, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			domain = append(domain, odooconnect.DomainCondition{v})
		case []interface{}:
			domain = append(domain, odooconnect.DomainCondition(v))
		default:
			return nil, fmt.Errorf("--domain: item %d is neither an operator nor a condition", i)
		}
	}
	return domain, nil
}

// decodeJSON strips comments and trailing commas, then decodes raw.
// Integral numbers become int64 so ids survive the XML-RPC transport.
func decodeJSON(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty JSON argument")
	}
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON([]byte(raw))))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return numbersToNative(v), nil
}

func decodeList(raw string) ([]interface{}, error) {
	v, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON list, got %T", v)
	}
	return list, nil
}

func decodeObject(raw string) (map[string]interface{}, error) {
	v, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

func numbersToNative(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = numbersToNative(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = numbersToNative(t[k])
		}
	}
	return v
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
