package envelope

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DeltaEpsilon is the floating-point noise floor for cross-condition
// acoustic deltas: computed deltas smaller than this in magnitude are
// snapped to exactly zero.
const DeltaEpsilon = 1e-6

// ErrNoPairs reports that a condition could not be paired against the
// baseline because one side contributed no rows.
var ErrNoPairs = errors.New("no pairable rows")

// PairedDelta is one joined row per (trace, seed) present in both the
// baseline and a constrained condition. The delta fields obey the noise
// suppression policy: when no parameter was clamped on the constrained
// side, all three acoustic deltas are exactly zero, so generator stochastic
// variance is never attributed to the envelope.
type PairedDelta struct {
	TraceID      string
	Seed         int
	PatternLabel string

	BaselineIntegratedLUFS    *float64
	ConstrainedIntegratedLUFS *float64
	DeltaIntegratedLUFS       *float64

	BaselineLRALU    *float64
	ConstrainedLRALU *float64
	DeltaLRALU       *float64

	BaselineOnsetDensityEPS    *float64
	ConstrainedOnsetDensityEPS *float64
	DeltaOnsetDensityEPS       *float64

	TempoClamped  bool
	GainClamped   bool
	AccentClamped bool
	AnyClamped    bool

	TempoDelta  float64
	GainDelta   float64
	AccentDelta float64
}

type pairKey struct {
	trace string
	seed  int
}

// PairCondition inner-joins the baseline rows of the record table with the
// rows of the named condition on (trace, seed). Pairs present in only one
// condition are dropped. An empty constrained subset, empty baseline
// subset, or empty join is an error wrapping ErrNoPairs: with nothing to
// compare, emitting an empty table would hide a broken dataset.
func PairCondition(records []RunRecord, condition string) ([]PairedDelta, error) {
	base := make(map[pairKey]*RunRecord)
	cons := make(map[pairKey]*RunRecord)
	for i := range records {
		r := &records[i]
		key := pairKey{trace: r.TraceID, seed: r.Seed}
		switch r.Condition {
		case BaselineCondition:
			base[key] = r
		case condition:
			cons[key] = r
		}
	}
	if len(cons) == 0 {
		return nil, fmt.Errorf("condition %q has no records: %w", condition, ErrNoPairs)
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("condition %q has no baseline to pair against: %w", condition, ErrNoPairs)
	}

	var rows []PairedDelta
	for key, cr := range cons {
		br, ok := base[key]
		if !ok {
			continue
		}
		rows = append(rows, pairRow(br, cr))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("condition %q shares no (trace, seed) with baseline: %w", condition, ErrNoPairs)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TraceID != rows[j].TraceID {
			return rows[i].TraceID < rows[j].TraceID
		}
		return rows[i].Seed < rows[j].Seed
	})
	return rows, nil
}

func pairRow(br, cr *RunRecord) PairedDelta {
	p := PairedDelta{
		TraceID:      cr.TraceID,
		Seed:         cr.Seed,
		PatternLabel: cr.PatternLabel,

		BaselineIntegratedLUFS:     br.IntegratedLUFS,
		ConstrainedIntegratedLUFS:  cr.IntegratedLUFS,
		BaselineLRALU:              br.LRALU,
		ConstrainedLRALU:           cr.LRALU,
		BaselineOnsetDensityEPS:    br.OnsetDensityEPS,
		ConstrainedOnsetDensityEPS: cr.OnsetDensityEPS,

		TempoClamped:  cr.Tempo.Clamped,
		GainClamped:   cr.Gain.Clamped,
		AccentClamped: cr.Accent.Clamped,
		AnyClamped:    cr.AnyClamped(),

		TempoDelta:  cr.Tempo.Delta,
		GainDelta:   cr.Gain.Delta,
		AccentDelta: cr.Accent.Delta,
	}

	if p.AnyClamped {
		p.DeltaIntegratedLUFS = snappedDiff(cr.IntegratedLUFS, br.IntegratedLUFS)
		p.DeltaLRALU = snappedDiff(cr.LRALU, br.LRALU)
		p.DeltaOnsetDensityEPS = snappedDiff(cr.OnsetDensityEPS, br.OnsetDensityEPS)
	} else {
		// No clamp fired, so the envelope had no effect on this pair:
		// force the measured deltas to zero rather than reporting
		// generator noise.
		p.DeltaIntegratedLUFS = zeroDelta()
		p.DeltaLRALU = zeroDelta()
		p.DeltaOnsetDensityEPS = zeroDelta()
	}
	return p
}

// snappedDiff returns constrained-minus-baseline with sub-epsilon results
// snapped to exactly zero, or nil when either side's metric is absent.
func snappedDiff(cons, base *float64) *float64 {
	if cons == nil || base == nil {
		return nil
	}
	d := *cons - *base
	if math.Abs(d) < DeltaEpsilon {
		d = 0
	}
	return &d
}

func zeroDelta() *float64 {
	z := 0.0
	return &z
}
