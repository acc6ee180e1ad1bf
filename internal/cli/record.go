package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dynatable/internal/core"
)

func newRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "record",
		Aliases: []string{"records"},
		Short:   "Insert, query, update and delete records",
	}
	cmd.AddCommand(newRecordInsertCommand())
	cmd.AddCommand(newRecordQueryCommand())
	cmd.AddCommand(newRecordUpdateCommand())
	cmd.AddCommand(newRecordDeleteCommand())
	return cmd
}

func newRecordInsertCommand() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:     "insert <table>",
		Short:   "Insert one record and print it",
		Example: `  dtctl record insert customer --data '{"name": "Ann", "email": "ann@example.com"}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := decodeData(data)
			if err != nil {
				return err
			}
			rec, err := appFrom(cmd).Records.Insert(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "{}", "field values as a JSON object")
	return cmd
}

type queryOptions struct {
	filters []string
	search  string
	page    int
	limit   int
	orderBy string
	desc    bool
}

func newRecordQueryCommand() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Print one page of records and the total match count",
		Long: `Print one page of records as JSON.

Filters are exact matches given as column=value and are ANDed. --search matches
a case-insensitive substring in the filtered columns; without filters it has no
effect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := opts.spec()
			if err != nil {
				return err
			}

			app := appFrom(cmd)
			records, err := app.Records.Query(cmd.Context(), args[0], spec)
			if err != nil {
				return err
			}
			total, err := app.Records.Count(cmd.Context(), args[0], spec)
			if err != nil {
				return err
			}
			if records == nil {
				records = []core.Record{}
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"data": records, "total": total})
		},
	}
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "exact match as column=value (repeatable)")
	cmd.Flags().StringVar(&opts.search, "search", "", "substring to look for in the filtered columns")
	cmd.Flags().IntVar(&opts.page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&opts.limit, "limit", 10, "records per page")
	cmd.Flags().StringVar(&opts.orderBy, "order-by", core.IDColumn, "column to sort by")
	cmd.Flags().BoolVar(&opts.desc, "desc", false, "sort descending")
	return cmd
}

func (o *queryOptions) spec() (core.QuerySpec, error) {
	spec := core.QuerySpec{
		Search:  o.search,
		Page:    o.page,
		Limit:   o.limit,
		SortBy:  o.orderBy,
		SortDir: core.SortAsc,
	}
	if o.desc {
		spec.SortDir = core.SortDesc
	}
	if len(o.filters) > 0 {
		spec.Filters = make(map[string]any, len(o.filters))
		for _, f := range o.filters {
			col, val, ok := strings.Cut(f, "=")
			if !ok || col == "" {
				return spec, core.NewValidationError("filter %q must be column=value", f)
			}
			spec.Filters[col] = val
		}
	}
	return spec, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, core.NewValidationError("id must be an integer, got %q", s)
	}
	return id, nil
}

func newRecordUpdateCommand() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "update <table> <id>",
		Short: "Change fields of one record and print it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			fields, err := decodeData(data)
			if err != nil {
				return err
			}
			rec, err := appFrom(cmd).Records.Update(cmd.Context(), args[0], id, fields)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("record %d not found in %s", id, args[0])
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "field values as a JSON object")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newRecordDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			_, found, err := appFrom(cmd).Records.Delete(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("record %d not found in %s", id, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Record deleted successfully")
			return nil
		},
	}
}
