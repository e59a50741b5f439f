package envelope

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ShiftStats summarises the magnitude of parameter shifts: mean, 95th
// percentile, and max of the absolute delta. All three are zero for an
// empty group.
type ShiftStats struct {
	Mean float64
	P95  float64
	Max  float64
}

// ParamEnforcement holds per-parameter enforcement rates and shift
// statistics for one condition.
type ParamEnforcement struct {
	RequestedOOBRate float64
	ClampRate        float64
	Shift            ShiftStats
	EffectiveOOBRate float64
}

// EnforcementSummary is one row per constrained condition quantifying how
// hard its envelope bites.
type EnforcementSummary struct {
	Condition  string
	ConfigHash string
	Tempo      ParamEnforcement
	Gain       ParamEnforcement
	Accent     ParamEnforcement
}

// TuningSensitivityRow compares conditions on overall clamp frequency and
// headline acoustic impact.
type TuningSensitivityRow struct {
	Condition    string
	ClampRateAny float64

	DeltaLRALUP95 float64
	DeltaLRALUMax float64

	DeltaIntegratedLUFSP95 float64
	DeltaIntegratedLUFSMax float64
}

// EnforcementSummaries reduces the record table to one summary per
// constrained condition that has a registered envelope and at least one
// record. Conditions with zero rows are skipped, not zero-filled. OOB rates
// treat unknown flags as not-out-of-bounds; the denominator is always the
// full row count for the condition.
func EnforcementSummaries(records []RunRecord, catalog *Catalog) []EnforcementSummary {
	var out []EnforcementSummary
	for _, cond := range catalog.ConstrainedConditions() {
		env, ok := catalog.Envelope(cond)
		if !ok {
			continue
		}
		subset := filterCondition(records, cond)
		if len(subset) == 0 {
			continue
		}
		out = append(out, EnforcementSummary{
			Condition:  cond,
			ConfigHash: env.ConfigHash,
			Tempo:      enforcementFor(subset, func(r *RunRecord) *ParamAudit { return &r.Tempo }),
			Gain:       enforcementFor(subset, func(r *RunRecord) *ParamAudit { return &r.Gain }),
			Accent:     enforcementFor(subset, func(r *RunRecord) *ParamAudit { return &r.Accent }),
		})
	}
	return out
}

// TuningSensitivity builds one row per condition with a non-empty paired
// table. The any-parameter clamp rate is computed against the condition's
// full record subset, not just the paired rows, so unpaired runs still
// count toward enforcement frequency.
func TuningSensitivity(records []RunRecord, pairedByCondition map[string][]PairedDelta) []TuningSensitivityRow {
	conds := make([]string, 0, len(pairedByCondition))
	for cond := range pairedByCondition {
		conds = append(conds, cond)
	}
	sort.Strings(conds)

	var out []TuningSensitivityRow
	for _, cond := range conds {
		paired := pairedByCondition[cond]
		if len(paired) == 0 {
			continue
		}

		subset := filterCondition(records, cond)
		var clamped int
		for i := range subset {
			if subset[i].AnyClamped() {
				clamped++
			}
		}
		row := TuningSensitivityRow{Condition: cond}
		if len(subset) > 0 {
			row.ClampRateAny = float64(clamped) / float64(len(subset))
		}

		var lraDeltas, lufsDeltas []float64
		for i := range paired {
			if paired[i].DeltaLRALU != nil {
				lraDeltas = append(lraDeltas, *paired[i].DeltaLRALU)
			}
			if paired[i].DeltaIntegratedLUFS != nil {
				lufsDeltas = append(lufsDeltas, *paired[i].DeltaIntegratedLUFS)
			}
		}
		row.DeltaLRALUP95, row.DeltaLRALUMax = signedStats(lraDeltas)
		row.DeltaIntegratedLUFSP95, row.DeltaIntegratedLUFSMax = signedStats(lufsDeltas)

		out = append(out, row)
	}
	return out
}

func filterCondition(records []RunRecord, condition string) []RunRecord {
	var out []RunRecord
	for i := range records {
		if records[i].Condition == condition {
			out = append(out, records[i])
		}
	}
	return out
}

func enforcementFor(rows []RunRecord, audit func(*RunRecord) *ParamAudit) ParamEnforcement {
	n := float64(len(rows))
	var reqOOB, effOOB, clamped float64
	shifts := make([]float64, 0, len(rows))
	for i := range rows {
		a := audit(&rows[i])
		if a.RequestedOOB != nil && *a.RequestedOOB {
			reqOOB++
		}
		if a.EffectiveOOB != nil && *a.EffectiveOOB {
			effOOB++
		}
		if a.Clamped {
			clamped++
		}
		shifts = append(shifts, math.Abs(a.Delta))
	}
	return ParamEnforcement{
		RequestedOOBRate: reqOOB / n,
		ClampRate:        clamped / n,
		Shift:            shiftStats(shifts),
		EffectiveOOBRate: effOOB / n,
	}
}

// shiftStats reduces a set of absolute shifts. The empirical quantile over
// the sorted values means p95 equals max for groups smaller than 20 rows.
func shiftStats(vals []float64) ShiftStats {
	if len(vals) == 0 {
		return ShiftStats{}
	}
	sort.Float64s(vals)
	return ShiftStats{
		Mean: stat.Mean(vals, nil),
		P95:  stat.Quantile(0.95, stat.Empirical, vals, nil),
		Max:  floats.Max(vals),
	}
}

func signedStats(vals []float64) (p95, max float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	sort.Float64s(vals)
	return stat.Quantile(0.95, stat.Empirical, vals, nil), floats.Max(vals)
}
