package envelope

import (
	"fmt"
	"os"
	"path/filepath"
)

// ParamAudit compares the requested and effective values of one parameter.
// OOB flags are nil when the run's condition carries no envelope. Clamped is
// an exact inequality of the reported values, with no tolerance: these are
// upstream-reported numbers, not re-measurements.
type ParamAudit struct {
	Requested    float64
	Effective    float64
	RequestedOOB *bool
	EffectiveOOB *bool
	Clamped      bool
	Delta        float64 // effective - requested, signed
}

// RunRecord is one flat row per generated run.
type RunRecord struct {
	TraceID   string
	Seed      int
	Condition string

	PatternLabel    string
	ConfigHash      string
	EffectiveSource EffectiveSource

	Tempo    ParamAudit
	Gain     ParamAudit // clamp and delta over gain_db; OOB judged on gain_raw
	GainUnit string
	Accent   ParamAudit

	AccentPctReq float64
	AccentPctEff float64

	IntegratedLUFS  *float64
	LRALU           *float64
	OnsetDensityEPS *float64
	PeakLUFS        *float64
	AudioPath       string

	SessionReportPath string
}

// AnyClamped reports whether any of the three parameters was clamped.
func (r *RunRecord) AnyClamped() bool {
	return r.Tempo.Clamped || r.Gain.Clamped || r.Accent.Clamped
}

// BuildRecords constructs one RunRecord per discovered run. Runs missing a
// required artifact (metrics or reward spec) are silently excluded; a
// malformed artifact that is present aborts the build. The result preserves
// discovery order, so building is deterministic for unchanged inputs.
func BuildRecords(locs []RunLocation, catalog *Catalog) ([]RunRecord, error) {
	records := make([]RunRecord, 0, len(locs))
	for _, loc := range locs {
		env, _ := catalog.Envelope(loc.Identity.Condition)
		rec, err := buildRecord(loc, env)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// buildRecord returns (nil, nil) when the run lacks a required artifact.
func buildRecord(loc RunLocation, env *Envelope) (*RunRecord, error) {
	metricsPath := filepath.Join(loc.Dir, MetricsFile)
	rewardPath := filepath.Join(loc.Dir, RewardSpecFile)
	sessionPath := filepath.Join(loc.Dir, SessionReportFile)

	var metrics AcousticMetrics
	if err := readJSONFile(metricsPath, &metrics); err != nil {
		if os.IsNotExist(err) {
			Logf("excluding run %s: no %s", loc.Identity, MetricsFile)
			return nil, nil
		}
		return nil, err
	}

	var reward rewardSpec
	if err := readJSONFile(rewardPath, &reward); err != nil {
		if os.IsNotExist(err) {
			Logf("excluding run %s: no %s", loc.Identity, RewardSpecFile)
			return nil, nil
		}
		return nil, err
	}
	if reward.ParamsRequested == nil {
		return nil, fmt.Errorf("%s: missing params_requested", rewardPath)
	}

	var session *sessionReport
	var s sessionReport
	switch err := readJSONFile(sessionPath, &s); {
	case err == nil:
		session = &s
	case os.IsNotExist(err):
		// optional artifact
	default:
		return nil, err
	}

	// Requested values always come from the reward spec: the session
	// report's requested side may be pre-formatted and lossy.
	requested := *reward.ParamsRequested
	effective, source, err := resolveEffective(requested, session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sessionPath, err)
	}

	var tempoBounds, gainBounds, accentBounds *Bounds
	if env != nil {
		tempoBounds = env.TempoBPM
		gainBounds = env.Gain
		accentBounds = env.AccentRatio
	}

	rec := &RunRecord{
		TraceID:         loc.Identity.TraceID,
		Seed:            loc.Identity.Seed,
		Condition:       loc.Identity.Condition,
		EffectiveSource: source,
		Tempo:           auditParam(requested.TempoBPM, effective.TempoBPM, requested.TempoBPM, effective.TempoBPM, tempoBounds),
		Gain:            auditParam(requested.GainDB, effective.GainDB, requested.GainRaw, effective.GainRaw, gainBounds),
		GainUnit:        requested.GainUnit,
		Accent:          auditParam(requested.AccentRatio, effective.AccentRatio, requested.AccentRatio, effective.AccentRatio, accentBounds),
		AccentPctReq:    requested.AccentPct,
		AccentPctEff:    effective.AccentPct,
		IntegratedLUFS:  metrics.IntegratedLUFS,
		LRALU:           metrics.LRALU,
		OnsetDensityEPS: metrics.OnsetDensityEPS,
		PeakLUFS:        metrics.PeakLUFS,
		AudioPath:       metrics.AudioPath,
	}

	if session != nil {
		rec.PatternLabel = session.PatternLabel
		rec.ConfigHash = session.ConfigHash
		rec.SessionReportPath = sessionPath
	} else {
		rec.PatternLabel = reward.PatternLabel
	}

	return rec, nil
}

// auditParam builds the per-parameter comparison. The clamp flag and delta
// use req/eff; the OOB flags judge oobReq/oobEff against the bounds, which
// lets gain clamp on dB while its envelope bounds the raw value.
func auditParam(req, eff, oobReq, oobEff float64, b *Bounds) ParamAudit {
	a := ParamAudit{
		Requested: req,
		Effective: eff,
		Clamped:   req != eff,
		Delta:     eff - req,
	}
	if b != nil {
		reqOOB := b.OutOfBounds(oobReq)
		effOOB := b.OutOfBounds(oobEff)
		a.RequestedOOB = &reqOOB
		a.EffectiveOOB = &effOOB
	}
	return a
}
