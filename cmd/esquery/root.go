package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reveald/esq"
	"github.com/reveald/esq/celexpr"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/featureset"
	"github.com/reveald/esq/linq"
	"github.com/reveald/esq/mapping"
)

type document = map[string]any

// connectFunc opens the client queries run through.
type connectFunc func(cfg *esq.Config, logger *zap.Logger) (esq.Client, error)

func connectElastic(cfg *esq.Config, logger *zap.Logger) (esq.Client, error) {
	opts, err := cfg.BackendOptions()
	if err != nil {
		return nil, err
	}
	return esq.NewElasticBackend(cfg.Addresses, append(opts, esq.WithLogger(logger))...)
}

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	Index       string
	Where       []string
	OrderBy     []string
	Descending  bool
	Fields      []string
	Query       string
	QueryFields []string
	Exists      []string
	Exclude     []string
	Vars        []string

	connect  connectFunc
	cfg      *esq.Config
	logger   *zap.Logger
	provider *linq.Provider
	parser   *celexpr.Parser
}

func newRootCommand(connect connectFunc) *cobra.Command {
	opts := &rootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:           "esquery",
		Short:         "Run CEL queries against Elasticsearch",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.Name() != "compile")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Index, "index", "", "index to query")
	flags.StringArrayVar(&opts.Where, "where", nil, "CEL filter; repeated filters combine with AND")
	flags.StringArrayVar(&opts.OrderBy, "order-by", nil, "property to sort on; repeatable")
	flags.BoolVar(&opts.Descending, "desc", false, "sort descending")
	flags.StringArrayVar(&opts.Fields, "field", nil, "declare a field kind as name=keyword|text|date|number")
	flags.StringVar(&opts.Query, "query", "", "free text query_string filter")
	flags.StringSliceVar(&opts.QueryFields, "query-field", nil, "fields the free text query searches")
	flags.StringSliceVar(&opts.Exists, "exists", nil, "only match documents with a value for these properties")
	flags.StringSliceVar(&opts.Exclude, "exclude", nil, "source fields to leave out of printed documents")
	flags.StringArrayVar(&opts.Vars, "var", nil, "bind a CEL string variable as name=value")
	_ = cmd.MarkPersistentFlagRequired("index")

	cmd.AddCommand(newCountCommand(opts))
	cmd.AddCommand(newSearchCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newGroupCommand(opts))
	cmd.AddCommand(newCompileCommand(opts))

	return cmd
}

// setup loads the configuration and builds the provider. Without online
// the provider has no client, which is enough to compile requests.
func (o *rootOptions) setup(online bool) error {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := esq.LoadConfig()
	if err != nil {
		return err
	}
	o.cfg = cfg

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid ESQ_LOG_LEVEL: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	if o.logger, err = zcfg.Build(); err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	var resolverOpts []mapping.Option
	for _, f := range o.Fields {
		name, kindName, ok := strings.Cut(f, "=")
		kind, known := mapping.ParseKind(kindName)
		if !ok || !known {
			return fmt.Errorf("invalid --field %q: want name=keyword|text|date|number", f)
		}
		resolverOpts = append(resolverOpts, mapping.WithFieldKind(name, kind))
	}

	var parserOpts []celexpr.Option
	for _, v := range o.Vars {
		name, value, ok := strings.Cut(v, "=")
		if !ok {
			return fmt.Errorf("invalid --var %q: want name=value", v)
		}
		parserOpts = append(parserOpts, celexpr.WithVariable(name, value))
	}
	if o.parser, err = celexpr.NewParser(parserOpts...); err != nil {
		return err
	}

	var client esq.Client
	if online {
		if client, err = o.connect(cfg, o.logger); err != nil {
			return err
		}
	}
	o.provider = linq.NewProvider(client,
		linq.WithConfig(cfg),
		linq.WithLogger(o.logger),
		linq.WithResolver(mapping.NewResolver(resolverOpts...)))
	return nil
}

// query builds the shared part of every command's query.
func (o *rootOptions) query() (*linq.Queryable[document], error) {
	q := linq.FromIndex[document](o.provider, o.Index)

	for _, src := range o.Where {
		n, err := o.parser.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("--where %q: %w", src, err)
		}
		q = q.Where(n)
	}

	for _, field := range o.OrderBy {
		path := expr.Field(strings.Split(field, ".")...)
		if o.Descending {
			q = q.OrderByDescending(path)
		} else {
			q = q.OrderBy(path)
		}
	}

	if o.Query != "" {
		q = q.Use(featureset.NewQueryFilterFeature(o.Query, featureset.WithFields(o.QueryFields...)))
	}
	if len(o.Exists) > 0 {
		var required []featureset.FilterOption
		for _, p := range o.Exists {
			required = append(required, featureset.WithRequiredProperty(p))
		}
		q = q.Use(featureset.NewFilterFeature(nil, required...))
	}
	if len(o.Exclude) > 0 {
		q = q.Use(featureset.NewPropertyExclusionFeature(o.Exclude...))
	}
	return q, nil
}

func (o *rootOptions) parse(flag, src string) (expr.Node, error) {
	n, err := o.parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("--%s %q: %w", flag, src, err)
	}
	return n, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
