package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dynatable/internal/core"
)

func newTableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Create, alter, drop and describe tables",
	}
	cmd.AddCommand(newTableCreateCommand())
	cmd.AddCommand(newTableAddColumnCommand())
	cmd.AddCommand(newTableDropCommand())
	cmd.AddCommand(newTableDescribeCommand())
	return cmd
}

func newTableCreateCommand() *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:     "create <table>",
		Short:   "Create a table with an id column plus the given fields",
		Example: `  dtctl table create customer --field name:TEXT --field "email:TEXT UNIQUE"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols, err := parseFields(fields)
			if err != nil {
				return err
			}
			schema := core.TableSchema{Name: args[0], Columns: cols}
			if err := appFrom(cmd).Schema.CreateTable(cmd.Context(), schema); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Table %s created successfully\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "column as name:TYPE (repeatable)")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

// parseFields splits name:TYPE pairs. The type may itself contain spaces.
func parseFields(fields []string) ([]core.ColumnDef, error) {
	cols := make([]core.ColumnDef, 0, len(fields))
	for _, f := range fields {
		name, typ, ok := strings.Cut(f, ":")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(typ) == "" {
			return nil, core.NewValidationError("field %q must be name:TYPE", f)
		}
		cols = append(cols, core.ColumnDef{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)})
	}
	return cols, nil
}

func newTableAddColumnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-column <table> <column> <type>",
		Short: "Add a column to an existing table",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			col := core.ColumnDef{Name: args[1], Type: args[2]}
			if err := appFrom(cmd).Schema.AddColumn(cmd.Context(), args[0], col); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Column %s added to %s successfully\n", args[1], args[0])
			return nil
		},
	}
}

func newTableDropCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "drop <table>",
		Aliases: []string{"delete"},
		Short:   "Drop a table and all its records",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).Schema.DropTable(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Table %s deleted successfully\n", args[0])
			return nil
		},
	}
}

func newTableDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Print a table's columns as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := appFrom(cmd).Schema.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !schema.Exists() {
				return fmt.Errorf("%w: %s", core.ErrTableNotFound, args[0])
			}
			return printJSON(cmd.OutOrStdout(), schema)
		},
	}
}
