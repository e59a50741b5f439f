package envelope

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Artifact file names inside each run directory.
const (
	MetricsFile       = "l1metrics.json"
	RewardSpecFile    = "reward_spec.json"
	SessionReportFile = "sessionReport.json"
)

// AcousticMetrics holds the signal-level measurements of one rendered run.
// Every field is optional at read time; absence is valid, not an error.
type AcousticMetrics struct {
	IntegratedLUFS  *float64 `json:"integrated_lufs"`
	LRALU           *float64 `json:"lra_lu"`
	OnsetDensityEPS *float64 `json:"onset_density_eps"`
	PeakLUFS        *float64 `json:"peak_lufs"`
	AudioPath       string   `json:"audio_path"`
}

// ParamValues is the canonical numeric parameter record for one side
// (requested or effective) of a run. Every source document shape resolves
// into this form once, at record-build time.
type ParamValues struct {
	TempoBPM    float64 `json:"tempo_bpm"`
	GainDB      float64 `json:"gain_db"`
	GainRaw     float64 `json:"gain_raw"`
	GainUnit    string  `json:"gain_unit"`
	AccentRatio float64 `json:"accent_ratio"`
	AccentPct   float64 `json:"accent_pct"`
}

type rewardSpec struct {
	ParamsRequested *ParamValues `json:"params_requested"`
	PatternLabel    string       `json:"pattern_label"`
}

type sessionReport struct {
	Params       sessionParams `json:"params"`
	PatternLabel string        `json:"patternLabel"`
	ConfigHash   string        `json:"configHash"`
}

type sessionParams struct {
	RawEffective *ParamValues     `json:"raw_effective"`
	Effective    *legacyEffective `json:"effective"`
}

// legacyEffective decodes the effective-parameter block of older session
// reports, whose values may be raw numbers or display-formatted strings
// such as "178 BPM" or "-6.0 dB".
type legacyEffective struct {
	TempoBPM    flexFloat `json:"tempo_bpm"`
	GainDB      flexFloat `json:"gain_db"`
	GainRaw     flexFloat `json:"gain_raw"`
	GainUnit    string    `json:"gain_unit"`
	AccentRatio flexFloat `json:"accent_ratio"`
	AccentPct   flexFloat `json:"accent_pct"`
}

func (l *legacyEffective) values() ParamValues {
	return ParamValues{
		TempoBPM:    float64(l.TempoBPM),
		GainDB:      float64(l.GainDB),
		GainRaw:     float64(l.GainRaw),
		GainUnit:    l.GainUnit,
		AccentRatio: float64(l.AccentRatio),
		AccentPct:   float64(l.AccentPct),
	}
}

// flexFloat accepts either a JSON number or a formatted string whose
// leading token is numeric.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parameter value %s is neither number nor string", data)
	}
	v, err := parseLeadingFloat(s)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// parseLeadingFloat extracts the numeric prefix of a formatted parameter
// string, tolerating unit suffixes with or without a separating space.
func parseLeadingFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	stop := len(s)
	for i, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '+' || r == '-' {
			continue
		}
		stop = i
		break
	}
	if stop == 0 {
		return 0, fmt.Errorf("no numeric prefix in parameter value %q", s)
	}
	v, err := strconv.ParseFloat(s[:stop], 64)
	if err != nil {
		return 0, fmt.Errorf("parameter value %q: %w", s, err)
	}
	return v, nil
}

// EffectiveSource records which document shape supplied a run's effective
// parameters.
type EffectiveSource int

const (
	// EffectiveFromSessionRaw means the session report carried the
	// raw_effective block (current report format).
	EffectiveFromSessionRaw EffectiveSource = iota
	// EffectiveFromSessionLegacy means the effective values were recovered
	// from the formatted effective block of an older report.
	EffectiveFromSessionLegacy
	// EffectiveFromRequested means no session report existed and the
	// requested parameters stood in for the effective ones.
	EffectiveFromRequested
)

func (s EffectiveSource) String() string {
	switch s {
	case EffectiveFromSessionRaw:
		return "session_raw"
	case EffectiveFromSessionLegacy:
		return "session_legacy"
	case EffectiveFromRequested:
		return "requested_fallback"
	default:
		return "unknown"
	}
}

// resolveEffective picks the effective parameter values for a run. The
// session report's raw_effective block wins when present; the formatted
// legacy block is the compatibility path for older reports. When no session
// report exists at all, the requested parameters stand in — a preserved
// policy choice, which means such runs report zero clamping even if the
// generator did clamp.
func resolveEffective(requested ParamValues, session *sessionReport) (ParamValues, EffectiveSource, error) {
	if session == nil {
		return requested, EffectiveFromRequested, nil
	}
	if session.Params.RawEffective != nil {
		return *session.Params.RawEffective, EffectiveFromSessionRaw, nil
	}
	if session.Params.Effective != nil {
		return session.Params.Effective.values(), EffectiveFromSessionLegacy, nil
	}
	return ParamValues{}, 0, fmt.Errorf("session report has neither raw_effective nor effective params")
}

// readJSONFile decodes one JSON document with scoped open/close.
func readJSONFile(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
