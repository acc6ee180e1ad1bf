// Package cli provides the dtctl command-line interface.
//
// dtctl drives the same engines as the HTTP API directly against the database:
// table management, record CRUD and synchronous CSV import.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dynatable/internal/application"
	"github.com/JonMunkholm/dynatable/internal/config"
	"github.com/JonMunkholm/dynatable/internal/core"
	"github.com/JonMunkholm/dynatable/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// closeTimeout bounds the drain on exit.
const closeTimeout = 30 * time.Second

type appKey struct{}

// rootOptions are the persistent flags and the application they open.
type rootOptions struct {
	envFile string
	driver  string
	url     string

	app *application.App
}

// newRootCmd creates the dtctl command tree. The returned options own the
// application once a command has run; close them when done.
func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "dtctl",
		Short: "dtctl - manage dynamic tables and import CSV files",
		Long: `dtctl manages tables whose schema is defined at runtime, reads and writes
their records, and imports CSV files through the same pipeline as the API.

Connection settings come from the environment (DB_DRIVER, DATABASE_URL) or a
.env file; --driver and --db override them.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			app, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts.app = app
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load if present")
	rootCmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "database driver: postgres or sqlite (overrides DB_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&opts.url, "db", "", "database URL or SQLite path (overrides DATABASE_URL)")

	_ = rootCmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"postgres", "sqlite"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newTableCommand())
	rootCmd.AddCommand(newRecordCommand())
	rootCmd.AddCommand(newImportCommand())

	return rootCmd, opts
}

// open loads configuration and builds the application. Notifications always go
// to the log; the CLI never sends mail.
func (o *rootOptions) open(ctx context.Context, logOut io.Writer) (*application.App, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}
	if o.driver != "" {
		os.Setenv("DB_DRIVER", o.driver)
	}
	if o.url != "" {
		os.Setenv("DATABASE_URL", o.url)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Notify.Sink = "log"

	logging.SetupWriter(logOut, cfg.Logging.Level, cfg.Logging.Format)

	return application.New(ctx, cfg)
}

// close drains and closes the application, if one was opened.
func (o *rootOptions) close() error {
	if o.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := o.app.Close(ctx)
	o.app = nil
	return err
}

// appFrom returns the application opened by the root command.
func appFrom(cmd *cobra.Command) *application.App {
	return cmd.Context().Value(appKey{}).(*application.App)
}

// Execute runs the root command and prints any error with its user message.
func Execute() error {
	rootCmd, opts := newRootCmd()
	err := rootCmd.ExecuteContext(context.Background())
	err = errors.Join(err, opts.close())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		return err
	}
	return nil
}

// describeError pairs the user-facing message with the technical cause.
func describeError(err error) string {
	if !core.IsUserFacing(err) {
		return err.Error()
	}
	return fmt.Sprintf("%s\n  cause: %v", core.FormatUserError(err), err)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// decodeData parses a JSON object of field values, keeping numbers exact.
func decodeData(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, core.NewValidationError("invalid request body: --data must be a JSON object: %v", err)
	}
	return data, nil
}
