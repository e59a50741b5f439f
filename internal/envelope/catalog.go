// Package envelope implements the envelope enforcement diagnostic pipeline:
// discovery of generated runs, per-run record construction with
// out-of-bounds and clamp detection, baseline pairing with noise
// suppression, and aggregate enforcement reporting.
package envelope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// BaselineCondition names the unconstrained reference condition.
const BaselineCondition = "baseline"

// Bounds is a closed numeric interval for one generation parameter.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// OutOfBounds reports whether v falls outside [Min, Max].
func (b *Bounds) OutOfBounds(v float64) bool {
	return v < b.Min || v > b.Max
}

// Envelope holds the per-parameter bounds applied to one condition.
// Parameters without a declared bound are nil.
type Envelope struct {
	TempoBPM    *Bounds `json:"tempo_bpm"`
	Gain        *Bounds `json:"gain"`
	AccentRatio *Bounds `json:"accent_ratio"`
	ConfigHash  string  `json:"configHash"`
}

// Catalog maps condition names to their envelopes. A condition declared
// without an envelope (the baseline, or a condition whose bounds document is
// missing) is a legitimate member of the catalog with no bounds; lookups
// against it report "unknown", never an error.
type Catalog struct {
	names     []string
	envelopes map[string]*Envelope
}

type conditionsDoc struct {
	Conditions map[string]conditionSpec `yaml:"conditions"`
}

type conditionSpec struct {
	Envelope string `yaml:"envelope"`
}

// LoadCatalog reads the conditions configuration document and loads every
// envelope-bounds document it references. A missing bounds file is skipped
// (the condition keeps no envelope); a missing or malformed conditions file
// is fatal. Relative envelope paths resolve against the conditions file's
// directory.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conditions config %s: %w", path, err)
	}

	var doc conditionsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("conditions config %s: %w", path, err)
	}
	if len(doc.Conditions) == 0 {
		return nil, fmt.Errorf("conditions config %s: no conditions declared", path)
	}

	cat := &Catalog{
		names:     make([]string, 0, len(doc.Conditions)),
		envelopes: make(map[string]*Envelope),
	}
	for name := range doc.Conditions {
		cat.names = append(cat.names, name)
	}
	sort.Strings(cat.names)

	baseDir := filepath.Dir(path)
	for _, name := range cat.names {
		envPath := doc.Conditions[name].Envelope
		if envPath == "" {
			continue
		}
		if !filepath.IsAbs(envPath) {
			envPath = filepath.Join(baseDir, envPath)
		}
		envData, err := os.ReadFile(envPath)
		if err != nil {
			if os.IsNotExist(err) {
				Logf("condition %q: envelope %s not found, bounds unavailable", name, envPath)
				continue
			}
			return nil, fmt.Errorf("envelope for condition %q: %w", name, err)
		}
		env := &Envelope{}
		if err := json.Unmarshal(envData, env); err != nil {
			return nil, fmt.Errorf("envelope %s: %w", envPath, err)
		}
		cat.envelopes[name] = env
	}

	return cat, nil
}

// Envelope returns the bounds registered for the named condition, or
// ok=false when the condition carries no envelope.
func (c *Catalog) Envelope(condition string) (*Envelope, bool) {
	env, ok := c.envelopes[condition]
	return env, ok
}

// Conditions returns every declared condition name in lexical order.
func (c *Catalog) Conditions() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// ConstrainedConditions returns every declared condition except the
// baseline, in lexical order.
func (c *Catalog) ConstrainedConditions() []string {
	out := make([]string, 0, len(c.names))
	for _, name := range c.names {
		if name != BaselineCondition {
			out = append(out, name)
		}
	}
	return out
}
