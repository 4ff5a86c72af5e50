package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/zonal-cli/internal/config"
	"github.com/sells-group/zonal-cli/internal/export"
	"github.com/sells-group/zonal-cli/internal/store"
)

var (
	runsTable  string
	runsFormat string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored summarize runs",
	Long:  "Commands for listing and printing result tables saved with summarize --store sqlite.",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listRuns(cmd.Context(), cmd.OutOrStdout(), cfg.Store, runsTable)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the rows saved by one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(cmd.Context(), cmd.OutOrStdout(), cfg.Store, args[0], runsFormat)
	},
}

// openHistory opens the run history. Only SQLite keeps one that can be read
// back.
func openHistory(ctx context.Context, sc config.StoreConfig) (*store.SQLiteStore, error) {
	if d := strings.ToLower(sc.Driver); d != "" && d != "sqlite" {
		return nil, eris.Errorf("runs: driver %q has no readable run history; use sqlite", sc.Driver)
	}
	if sc.DatabaseURL == "" {
		return nil, eris.New("store.database_url is required")
	}
	st, err := store.NewSQLite(sc.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func listRuns(ctx context.Context, w io.Writer, sc config.StoreConfig, table string) error {
	st, err := openHistory(ctx, sc)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(ctx, table)
	if err != nil {
		return eris.Wrap(err, "runs list")
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs found.")
		return nil
	}
	formatRunsList(w, runs)
	return nil
}

func showRun(ctx context.Context, w io.Writer, sc config.StoreConfig, runID, format string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	st, err := openHistory(ctx, sc)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	t, err := st.LoadRun(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "runs show")
	}
	return export.Write(w, f, t)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTABLE\tROWS\tCOLUMNS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t-------\t-------")

	for _, r := range runs {
		cols := strings.Join(r.Columns, ",")
		if len(cols) > 40 {
			cols = cols[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Table,
			r.Rows,
			cols,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	runsListCmd.Flags().StringVar(&runsTable, "table", "", "only list runs saved to this result table")
	runsShowCmd.Flags().StringVar(&runsFormat, "format", "text", "output format: csv, json, text")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
