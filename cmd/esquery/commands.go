package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reveald/esq/linq"
)

func newCountCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count matching documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query()
			if err != nil {
				return err
			}
			n, err := q.Count(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int64{"count": n})
		},
	}
}

type searchOptions struct {
	Page int
	Size int
}

type pageOutput struct {
	Total int64      `json:"total"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
	Items []document `json:"items"`
}

func newSearchCommand(opts *rootOptions) *cobra.Command {
	so := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Print one page of matching documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query()
			if err != nil {
				return err
			}
			page, err := q.Paged(cmd.Context(), so.Page, so.Size)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), pageOutput{
				Total: page.Total,
				Page:  page.Page,
				Size:  page.Size,
				Items: page.Items,
			})
		},
	}

	cmd.Flags().IntVar(&so.Page, "page", 1, "1-based page number")
	cmd.Flags().IntVar(&so.Size, "size", 10, "documents per page")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print every matching document, one JSON object per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			n := 0
			for doc, err := range q.All(cmd.Context()) {
				if err != nil {
					return fmt.Errorf("export stopped after %d documents: %w", n, err)
				}
				if err := writeLine(out, doc); err != nil {
					return err
				}
				n++
			}
			opts.logger.Debug("export finished", zap.String("index", opts.Index), zap.Int("documents", n))
			return nil
		},
	}
}

type groupOptions struct {
	By     string
	Select string
	First  bool
}

// apply adds the --by and --select stages to a query.
func (g *groupOptions) apply(opts *rootOptions, q *linq.Queryable[document]) (*linq.Queryable[document], error) {
	if g.By != "" {
		key, err := opts.parse("by", g.By)
		if err != nil {
			return nil, err
		}
		q = q.GroupBy(key)
	}
	if g.Select != "" {
		shape, err := opts.parse("select", g.Select)
		if err != nil {
			return nil, err
		}
		q = q.Select(shape)
	}
	return q, nil
}

func newGroupCommand(opts *rootOptions) *cobra.Command {
	g := &groupOptions{}

	cmd := &cobra.Command{
		Use:   "group",
		Short: "Project matching documents, optionally grouped, into result rows",
		Long: `Project matching documents into rows shaped by --select.

With --by the documents are grouped on a CEL key and the shape reads the
group as g, for example {"category": g.key, "total": sum(x.amount)}.
Without --by the shape either reads the properties of each document or
only aggregates over all of them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.Select == "" {
				return fmt.Errorf("group needs --select")
			}
			q, err := opts.query()
			if err != nil {
				return err
			}
			if q, err = g.apply(opts, q); err != nil {
				return err
			}

			if g.First {
				row, err := linq.ProjectFirst[document, document](cmd.Context(), q)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), row)
			}
			rows, err := linq.Project[document, document](cmd.Context(), q)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().StringVar(&g.By, "by", "", "CEL group key, a property or a map of properties")
	cmd.Flags().StringVar(&g.Select, "select", "", "CEL result shape, a map from names to values")
	cmd.Flags().BoolVar(&g.First, "first", false, "print only the first row")
	return cmd
}

func newCompileCommand(opts *rootOptions) *cobra.Command {
	g := &groupOptions{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the search request a query compiles to, without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query()
			if err != nil {
				return err
			}
			if q, err = g.apply(opts, q); err != nil {
				return err
			}
			req, err := q.Request()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), req)
		},
	}

	cmd.Flags().StringVar(&g.By, "by", "", "CEL group key")
	cmd.Flags().StringVar(&g.Select, "select", "", "CEL result shape")
	return cmd
}
