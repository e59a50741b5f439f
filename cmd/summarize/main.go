// Command summarize runs the envelope enforcement diagnostic pipeline: it
// discovers generated runs, builds the flat run-record table, pairs each
// constrained condition against the baseline, and writes the summary and
// report tables.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/envelope.report/internal/db"
	"github.com/banshee-data/envelope.report/internal/envelope"
)

func main() {
	var (
		runsDir        = flag.String("runs", "runs", "root directory of generated runs (condition/trace/seed)")
		conditionsPath = flag.String("conditions", "conditions.yaml", "conditions configuration file")
		outDir         = flag.String("out", ".", "directory receiving the summary/ and reports/ tables")
		dbPath         = flag.String("db", "", "optional sqlite database receiving a run-record snapshot")
		quiet          = flag.Bool("quiet", false, "suppress per-run diagnostics")
	)
	flag.Parse()

	if *quiet {
		envelope.SetLogger(nil)
	}

	if err := run(*runsDir, *conditionsPath, *outDir, *dbPath); err != nil {
		log.Fatalf("summarize: %v", err)
	}
}

func run(runsDir, conditionsPath, outDir, dbPath string) error {
	catalog, err := envelope.LoadCatalog(conditionsPath)
	if err != nil {
		return err
	}

	locs, err := envelope.DiscoverRuns(runsDir)
	if err != nil {
		return err
	}

	records, err := envelope.BuildRecords(locs, catalog)
	if err != nil {
		return err
	}

	summaryDir := filepath.Join(outDir, "summary")
	reportsDir := filepath.Join(outDir, "reports")
	for _, dir := range []string{summaryDir, reportsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}

	if err := envelope.WriteCSVFile(filepath.Join(summaryDir, "summary_runs.csv"), func(w io.Writer) error {
		return envelope.WriteRunRecordsCSV(w, records)
	}); err != nil {
		return err
	}

	if dbPath != "" {
		if err := snapshot(dbPath, runsDir, records); err != nil {
			return err
		}
	}

	pairedByCondition := make(map[string][]envelope.PairedDelta)
	for _, cond := range catalog.ConstrainedConditions() {
		rows, err := envelope.PairCondition(records, cond)
		if err != nil {
			return err
		}
		pairedByCondition[cond] = rows
		if err := envelope.WriteCSVFile(filepath.Join(summaryDir, pairedFileName(cond)), func(w io.Writer) error {
			return envelope.WritePairedDeltasCSV(w, rows)
		}); err != nil {
			return err
		}
	}

	for _, summary := range envelope.EnforcementSummaries(records, catalog) {
		summary := summary
		name := fmt.Sprintf("l2_enforcement_summary_%s.csv", conditionSuffix(summary.Condition))
		if err := envelope.WriteCSVFile(filepath.Join(reportsDir, name), func(w io.Writer) error {
			return envelope.WriteEnforcementSummaryCSV(w, summary)
		}); err != nil {
			return err
		}
	}

	if rows := envelope.TuningSensitivity(records, pairedByCondition); len(rows) > 0 {
		if err := envelope.WriteCSVFile(filepath.Join(reportsDir, "tuning_sensitivity_table.csv"), func(w io.Writer) error {
			return envelope.WriteTuningSensitivityCSV(w, rows)
		}); err != nil {
			return err
		}
	}

	return nil
}

func snapshot(dbPath, runsDir string, records []envelope.RunRecord) error {
	store, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.MigrateUp(); err != nil {
		return err
	}
	info, err := store.SnapshotRecords(runsDir, records)
	if err != nil {
		return err
	}
	envelope.Logf("snapshot %s: %d records into %s", info.BatchID, info.RecordCount, dbPath)
	return nil
}

// conditionSuffix shortens a condition name for report file naming.
func conditionSuffix(cond string) string {
	return strings.TrimPrefix(cond, "constrained_")
}

// pairedFileName keeps the primary condition's historical file name so
// downstream figure tooling finds it without configuration.
func pairedFileName(cond string) string {
	if cond == "constrained_default" {
		return "paired_summary.csv"
	}
	return "paired_summary_" + conditionSuffix(cond) + ".csv"
}
