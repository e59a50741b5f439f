package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/envelope.report/internal/db"
	"github.com/banshee-data/envelope.report/internal/testutil"
)

// writeRun lays out a complete run: metrics, reward spec, and a session
// report carrying raw effective parameters.
func writeRun(t *testing.T, root, condition, trace string, seed int, tempoReq, tempoEff, lufs float64) {
	t.Helper()
	dir := testutil.RunDir(t, root, condition, trace, seed)
	testutil.WriteJSON(t, filepath.Join(dir, "reward_spec.json"), map[string]interface{}{
		"params_requested": map[string]interface{}{
			"tempo_bpm":    tempoReq,
			"gain_db":      -6.0,
			"gain_raw":     0.5,
			"gain_unit":    "dB",
			"accent_ratio": 0.5,
			"accent_pct":   50.0,
		},
		"pattern_label": "fourfloor",
	})
	testutil.WriteJSON(t, filepath.Join(dir, "l1metrics.json"), map[string]interface{}{
		"integrated_lufs":   lufs,
		"lra_lu":            6.0,
		"onset_density_eps": 3.0,
		"peak_lufs":         -1.0,
		"audio_path":        "render.wav",
	})
	testutil.WriteJSON(t, filepath.Join(dir, "sessionReport.json"), map[string]interface{}{
		"params": map[string]interface{}{
			"raw_effective": map[string]interface{}{
				"tempo_bpm":    tempoEff,
				"gain_db":      -6.0,
				"gain_raw":     0.5,
				"gain_unit":    "dB",
				"accent_ratio": 0.5,
				"accent_pct":   50.0,
			},
		},
		"patternLabel": "fourfloor",
		"configHash":   "abc123",
	})
}

func writeFixtures(t *testing.T) (runsDir, conditionsPath string) {
	t.Helper()
	base := t.TempDir()
	runsDir = filepath.Join(base, "runs")

	testutil.WriteFile(t, filepath.Join(base, "envelopes", "default.json"), `{
  "tempo_bpm": {"min": 60, "max": 180},
  "gain": {"min": 0.1, "max": 1.0},
  "accent_ratio": {"min": 0.0, "max": 0.6},
  "configHash": "abc123"
}`)
	testutil.WriteFile(t, filepath.Join(base, "envelopes", "tight.json"), `{
  "tempo_bpm": {"min": 90, "max": 160},
  "gain": {"min": 0.2, "max": 0.8},
  "accent_ratio": {"min": 0.1, "max": 0.5},
  "configHash": "t1gh7"
}`)
	conditionsPath = filepath.Join(base, "conditions.yaml")
	testutil.WriteFile(t, conditionsPath, `conditions:
  baseline: {}
  constrained_default:
    envelope: envelopes/default.json
  constrained_tight:
    envelope: envelopes/tight.json
`)

	// One trace shared by all conditions. The default condition clamps
	// tempo 200 -> 180; the tight condition requests in-bounds and its
	// loudness drift is pure generator noise.
	writeRun(t, runsDir, "baseline", "t1", 7, 120, 120, -20.0)
	writeRun(t, runsDir, "constrained_default", "t1", 7, 200, 180, -18.5)
	writeRun(t, runsDir, "constrained_tight", "t1", 7, 150, 150, -19.9999995)

	return runsDir, conditionsPath
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func cell(t *testing.T, rows [][]string, rowIdx int, col string) string {
	t.Helper()
	for i, name := range rows[0] {
		if name == col {
			return rows[rowIdx][i]
		}
	}
	t.Fatalf("no column %q in %v", col, rows[0])
	return ""
}

func TestRunEndToEnd(t *testing.T) {
	runsDir, conditionsPath := writeFixtures(t)
	outDir := t.TempDir()

	require.NoError(t, run(runsDir, conditionsPath, outDir, ""))

	// Flat table: three runs, clamp flags exact.
	summary := readCSV(t, filepath.Join(outDir, "summary", "summary_runs.csv"))
	require.Len(t, summary, 4)
	var constrainedRow int
	for i := 1; i < len(summary); i++ {
		if cell(t, summary, i, "condition") == "constrained_default" {
			constrainedRow = i
		}
	}
	require.NotZero(t, constrainedRow)
	assert.Equal(t, "1", cell(t, summary, constrainedRow, "tempo_clamped"))
	assert.Equal(t, "-20.000000", cell(t, summary, constrainedRow, "tempo_delta"))
	assert.Equal(t, "1", cell(t, summary, constrainedRow, "tempo_req_oob"))

	// Paired table for the clamped condition attributes the loudness shift.
	paired := readCSV(t, filepath.Join(outDir, "summary", "paired_summary.csv"))
	require.Len(t, paired, 2)
	assert.Equal(t, "1.500000", cell(t, paired, 1, "delta_integrated_lufs"))

	// The unclamped condition's drift is suppressed to exactly zero.
	pairedTight := readCSV(t, filepath.Join(outDir, "summary", "paired_summary_tight.csv"))
	require.Len(t, pairedTight, 2)
	assert.Equal(t, "0", cell(t, pairedTight, 1, "tempo_clamped"))
	assert.Equal(t, "0.000000", cell(t, pairedTight, 1, "delta_integrated_lufs"))

	// Enforcement summary for the clamped condition.
	enforcement := readCSV(t, filepath.Join(outDir, "reports", "l2_enforcement_summary_default.csv"))
	require.Len(t, enforcement, 2)
	assert.Equal(t, "1.000000", cell(t, enforcement, 1, "tempo_clamp_rate"))
	assert.Equal(t, "abc123", cell(t, enforcement, 1, "config_hash"))

	// Tuning sensitivity covers both constrained conditions, sorted.
	tuning := readCSV(t, filepath.Join(outDir, "reports", "tuning_sensitivity_table.csv"))
	require.Len(t, tuning, 3)
	assert.Equal(t, "constrained_default", tuning[1][0])
	assert.Equal(t, "1.000000", cell(t, tuning, 1, "clamp_rate_any"))
	assert.Equal(t, "constrained_tight", tuning[2][0])
	assert.Equal(t, "0.000000", cell(t, tuning, 2, "clamp_rate_any"))
}

func TestRunIsDeterministic(t *testing.T) {
	runsDir, conditionsPath := writeFixtures(t)
	outDir := t.TempDir()

	require.NoError(t, run(runsDir, conditionsPath, outDir, ""))

	outputs := []string{
		filepath.Join("summary", "summary_runs.csv"),
		filepath.Join("summary", "paired_summary.csv"),
		filepath.Join("summary", "paired_summary_tight.csv"),
		filepath.Join("reports", "l2_enforcement_summary_default.csv"),
		filepath.Join("reports", "l2_enforcement_summary_tight.csv"),
		filepath.Join("reports", "tuning_sensitivity_table.csv"),
	}
	first := make(map[string][]byte)
	for _, rel := range outputs {
		data, err := os.ReadFile(filepath.Join(outDir, rel))
		require.NoError(t, err, rel)
		first[rel] = data
	}

	require.NoError(t, run(runsDir, conditionsPath, outDir, ""))
	for _, rel := range outputs {
		data, err := os.ReadFile(filepath.Join(outDir, rel))
		require.NoError(t, err, rel)
		assert.True(t, bytes.Equal(first[rel], data), "output %s changed between identical runs", rel)
	}
}

func TestRunSnapshotsDatabase(t *testing.T) {
	runsDir, conditionsPath := writeFixtures(t)
	outDir := t.TempDir()
	dbPath := filepath.Join(outDir, "records.db")

	require.NoError(t, run(runsDir, conditionsPath, outDir, dbPath))

	store, err := db.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.CountRecords()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, ok, err := store.LatestSnapshot()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunFatalErrors(t *testing.T) {
	runsDir, conditionsPath := writeFixtures(t)
	outDir := t.TempDir()

	// Missing conditions configuration is fatal and names the path.
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	err := run(runsDir, missing, outDir, "")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), missing))

	// Missing runs root is fatal.
	err = run(filepath.Join(t.TempDir(), "gone"), conditionsPath, outDir, "")
	require.Error(t, err)

	// A declared constrained condition with no pairable rows is a genuine
	// reporting error, not a silent skip.
	base := t.TempDir()
	emptyConditions := filepath.Join(base, "conditions.yaml")
	testutil.WriteFile(t, emptyConditions, `conditions:
  baseline: {}
  constrained_default: {}
  constrained_unbuilt: {}
`)
	err = run(runsDir, emptyConditions, outDir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constrained_unbuilt")
}
