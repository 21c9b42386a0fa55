package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	appconfig "github.com/ca-srg/halalfinder/internal/config"
	"github.com/ca-srg/halalfinder/internal/metrics"
)

var (
	statsDays int
	statsJSON bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many searches were run from each surface",
	Long: `
Show cumulative and daily search counts recorded for the CLI (cli),
the web UI API (api) and the MCP server (mcp).

Counts are kept in a local SQLite database (STATS_DB_PATH, default
~/.halalfinder/stats.db).
`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Number of days of daily counts to show")
	statsCmd.Flags().BoolVarP(&statsJSON, "json", "j", false, "Output statistics in JSON format")
}

type statsReport struct {
	Totals map[metrics.Mode]int64 `json:"totals"`
	Daily  []metrics.DailyCount   `json:"daily"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := metrics.NewStore(cfg.StatsDBPath)
	if err != nil {
		return fmt.Errorf("failed to open stats store: %w", err)
	}
	defer func() { _ = store.Close() }()

	report, err := buildStatsReport(store, statsDays)
	if err != nil {
		return err
	}

	if statsJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	printStats(cmd.OutOrStdout(), report, statsDays)
	return nil
}

func buildStatsReport(store *metrics.Store, days int) (*statsReport, error) {
	totals, err := store.GetAllTotals()
	if err != nil {
		return nil, err
	}
	daily, err := store.GetDailyCounts(days)
	if err != nil {
		return nil, err
	}
	if daily == nil {
		daily = []metrics.DailyCount{}
	}
	return &statsReport{Totals: totals, Daily: daily}, nil
}

func printStats(w io.Writer, report *statsReport, days int) {
	fmt.Fprintln(w, "=== Total searches ===")
	var sum int64
	for _, mode := range metrics.AllModes {
		fmt.Fprintf(w, "  %-4s %d\n", mode, report.Totals[mode])
		sum += report.Totals[mode]
	}
	fmt.Fprintf(w, "  %-4s %d\n", "all", sum)

	fmt.Fprintf(w, "\n=== Last %d days ===\n", days)
	if len(report.Daily) == 0 {
		fmt.Fprintln(w, "  no searches recorded")
		return
	}
	for _, dc := range report.Daily {
		fmt.Fprintf(w, "  %s  %-4s %d\n", dc.Date, dc.Mode, dc.Count)
	}
}
