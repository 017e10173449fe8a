package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/sift/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	dayStart := defaultUTCDay()
	_, dayEnd := utcDayBounds(dayStart)

	stats, err := pool.QueryStoreStats(ctx, dayStart, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query store stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	ownerRows := make([][]string, 0, len(stats.Owners)+1)
	for _, row := range stats.Owners {
		ownerRows = append(ownerRows, []string{
			truncateForTable(row.OwnerID, 40),
			fmt.Sprintf("%d", row.Records),
			formatUTCTimestamp(row.LastStoredAt),
		})
	}
	ownerRows = append(ownerRows, []string{
		"TOTAL",
		fmt.Sprintf("%d", stats.TotalRecords),
		"",
	})

	if err := writeTable([]string{"owner_id", "records", "last_stored_at"}, ownerRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render owner table: %v\n", err)
		return 1
	}

	fmt.Println()
	summaryRows := [][]string{
		{"runs_running", fmt.Sprintf("%d", stats.Runs.Running)},
		{"runs_completed", fmt.Sprintf("%d", stats.Runs.Completed)},
		{"runs_failed", fmt.Sprintf("%d", stats.Runs.Failed)},
		{"records_stored_today", fmt.Sprintf("%d", stats.Throughput.RecordsStoredToday)},
		{"runs_started_today", fmt.Sprintf("%d", stats.Throughput.RunsStartedToday)},
	}
	if err := writeTable([]string{"metric", "value"}, summaryRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render summary table: %v\n", err)
		return 1
	}

	return 0
}
