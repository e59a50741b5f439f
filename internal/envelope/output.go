package envelope

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Column orders are fixed so reruns over unchanged input emit byte-identical
// tables.

var runRecordHeader = []string{
	"trace_id", "seed", "condition", "pattern_label", "config_hash",
	"tempo_req", "tempo_eff", "tempo_req_oob", "tempo_eff_oob", "tempo_clamped", "tempo_delta",
	"gain_req", "gain_eff", "gain_req_oob", "gain_eff_oob", "gain_clamped", "gain_delta", "gain_unit",
	"accent_req", "accent_eff", "accent_req_oob", "accent_eff_oob", "accent_clamped", "accent_delta",
	"accent_pct_req", "accent_pct_eff",
	"integrated_lufs", "lra_lu", "onset_density_eps", "peak_lufs", "audio_path",
	"session_report_path",
}

var pairedHeader = []string{
	"trace_id", "seed", "pattern_label",
	"baseline_integrated_lufs", "constrained_integrated_lufs", "delta_integrated_lufs",
	"baseline_lra_lu", "constrained_lra_lu", "delta_lra_lu",
	"baseline_onset_density_eps", "constrained_onset_density_eps", "delta_onset_density_eps",
	"tempo_clamped", "gain_clamped", "accent_clamped",
	"tempo_delta", "gain_delta", "accent_delta",
}

var enforcementHeader = []string{
	"condition", "config_hash",
	"tempo_requested_oob_rate", "tempo_clamp_rate", "tempo_shift_mean", "tempo_shift_p95", "tempo_shift_max", "tempo_effective_oob_rate",
	"gain_requested_oob_rate", "gain_clamp_rate", "gain_shift_mean", "gain_shift_p95", "gain_shift_max", "gain_effective_oob_rate",
	"accent_requested_oob_rate", "accent_clamp_rate", "accent_shift_mean", "accent_shift_p95", "accent_shift_max", "accent_effective_oob_rate",
}

var tuningHeader = []string{
	"condition", "clamp_rate_any",
	"delta_lra_lu_p95", "delta_lra_lu_max",
	"delta_integrated_lufs_p95", "delta_integrated_lufs_max",
}

// WriteRunRecordsCSV emits the flat run-record table.
func WriteRunRecordsCSV(w io.Writer, records []RunRecord) error {
	cw := csv.NewWriter(w)
	cw.Write(runRecordHeader)
	for i := range records {
		r := &records[i]
		cw.Write([]string{
			r.TraceID,
			strconv.Itoa(r.Seed),
			r.Condition,
			r.PatternLabel,
			r.ConfigHash,
			f6(r.Tempo.Requested), f6(r.Tempo.Effective), optFlag01(r.Tempo.RequestedOOB), optFlag01(r.Tempo.EffectiveOOB), flag01(r.Tempo.Clamped), f6(r.Tempo.Delta),
			f6(r.Gain.Requested), f6(r.Gain.Effective), optFlag01(r.Gain.RequestedOOB), optFlag01(r.Gain.EffectiveOOB), flag01(r.Gain.Clamped), f6(r.Gain.Delta), r.GainUnit,
			f6(r.Accent.Requested), f6(r.Accent.Effective), optFlag01(r.Accent.RequestedOOB), optFlag01(r.Accent.EffectiveOOB), flag01(r.Accent.Clamped), f6(r.Accent.Delta),
			f6(r.AccentPctReq), f6(r.AccentPctEff),
			optF6(r.IntegratedLUFS), optF6(r.LRALU), optF6(r.OnsetDensityEPS), optF6(r.PeakLUFS), r.AudioPath,
			r.SessionReportPath,
		})
	}
	cw.Flush()
	return cw.Error()
}

// WritePairedDeltasCSV emits one paired-delta table.
func WritePairedDeltasCSV(w io.Writer, rows []PairedDelta) error {
	cw := csv.NewWriter(w)
	cw.Write(pairedHeader)
	for i := range rows {
		p := &rows[i]
		cw.Write([]string{
			p.TraceID,
			strconv.Itoa(p.Seed),
			p.PatternLabel,
			optF6(p.BaselineIntegratedLUFS), optF6(p.ConstrainedIntegratedLUFS), optF6(p.DeltaIntegratedLUFS),
			optF6(p.BaselineLRALU), optF6(p.ConstrainedLRALU), optF6(p.DeltaLRALU),
			optF6(p.BaselineOnsetDensityEPS), optF6(p.ConstrainedOnsetDensityEPS), optF6(p.DeltaOnsetDensityEPS),
			flag01(p.TempoClamped), flag01(p.GainClamped), flag01(p.AccentClamped),
			f6(p.TempoDelta), f6(p.GainDelta), f6(p.AccentDelta),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteEnforcementSummaryCSV emits a single-row enforcement summary table.
func WriteEnforcementSummaryCSV(w io.Writer, s EnforcementSummary) error {
	cw := csv.NewWriter(w)
	cw.Write(enforcementHeader)
	row := []string{s.Condition, s.ConfigHash}
	for _, p := range []ParamEnforcement{s.Tempo, s.Gain, s.Accent} {
		row = append(row,
			f6(p.RequestedOOBRate), f6(p.ClampRate),
			f6(p.Shift.Mean), f6(p.Shift.P95), f6(p.Shift.Max),
			f6(p.EffectiveOOBRate),
		)
	}
	cw.Write(row)
	cw.Flush()
	return cw.Error()
}

// WriteTuningSensitivityCSV emits the cross-condition sensitivity table.
func WriteTuningSensitivityCSV(w io.Writer, rows []TuningSensitivityRow) error {
	cw := csv.NewWriter(w)
	cw.Write(tuningHeader)
	for _, r := range rows {
		cw.Write([]string{
			r.Condition,
			f6(r.ClampRateAny),
			f6(r.DeltaLRALUP95), f6(r.DeltaLRALUMax),
			f6(r.DeltaIntegratedLUFSP95), f6(r.DeltaIntegratedLUFSMax),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes one table to path, truncating any previous content so
// report runs are idempotent rewrites.
func WriteCSVFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func f6(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

func optF6(v *float64) string {
	if v == nil {
		return ""
	}
	return f6(*v)
}

func flag01(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func optFlag01(b *bool) string {
	if b == nil {
		return ""
	}
	return flag01(*b)
}
