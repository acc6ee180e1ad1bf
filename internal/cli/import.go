package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dynatable/internal/core"
)

// defaultRequester receives the log notification of CLI imports.
const defaultRequester = "dtctl@localhost"

func newImportCommand() *cobra.Command {
	var (
		table string
		email string
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV file into a table and wait for the outcome",
		Long: `Import a CSV file through the same job pipeline the API uses, then wait for
it to finish. The header must name existing columns; the import is all or
nothing. The outcome is recorded as an import job and logged as a notification.`,
		Example: `  dtctl import customers.csv --table customer`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			app := appFrom(cmd)
			ds, err := app.Importer.ParseCSV(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			jobID, err := app.Dispatcher.Submit(ctx, core.ImportRequest{
				Table:     table,
				Dataset:   ds,
				Requester: email,
			})
			if err != nil {
				return err
			}
			if err := app.Dispatcher.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for import job %s: %w", jobID, err)
			}

			job, _, err := app.Dispatcher.Job(ctx, jobID)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), job); err != nil {
				return err
			}
			if job.State == core.JobFailed {
				return fmt.Errorf("import job %s failed: %s (Code: %s)", job.ID, job.Error, job.ErrorCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "target table")
	cmd.Flags().StringVar(&email, "email", defaultRequester, "requester address recorded on the job")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
