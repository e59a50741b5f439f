package envelope

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// RunIdentity uniquely identifies one generated run. TraceID groups runs
// that share a generation trace across conditions and is the pairing key.
type RunIdentity struct {
	Condition string
	TraceID   string
	Seed      int
}

func (id RunIdentity) String() string {
	return fmt.Sprintf("%s/%s/%d", id.Condition, id.TraceID, id.Seed)
}

// RunLocation couples a run identity with the directory holding its
// artifacts. Discovery is the only code that knows the physical layout; the
// rest of the pipeline works from these values.
type RunLocation struct {
	Identity RunIdentity
	Dir      string
}

// DiscoverRuns enumerates the runs stored under root, which is laid out as
// condition/trace_id/seed/. Non-directory entries are skipped at every
// level, as are seed directories whose name is not an integer. The result
// is ordered lexically by condition, trace, and seed directory name, so a
// rerun over unchanged input enumerates identically.
func DiscoverRuns(root string) ([]RunLocation, error) {
	condEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("runs root %s: %w", root, err)
	}

	var locs []RunLocation
	for _, condEntry := range condEntries {
		if !condEntry.IsDir() {
			continue
		}
		condDir := filepath.Join(root, condEntry.Name())
		traceEntries, err := os.ReadDir(condDir)
		if err != nil {
			return nil, fmt.Errorf("condition directory %s: %w", condDir, err)
		}
		for _, traceEntry := range traceEntries {
			if !traceEntry.IsDir() {
				continue
			}
			traceDir := filepath.Join(condDir, traceEntry.Name())
			seedEntries, err := os.ReadDir(traceDir)
			if err != nil {
				return nil, fmt.Errorf("trace directory %s: %w", traceDir, err)
			}
			for _, seedEntry := range seedEntries {
				if !seedEntry.IsDir() {
					continue
				}
				seed, err := strconv.Atoi(seedEntry.Name())
				if err != nil {
					Logf("skipping non-numeric seed directory %s", filepath.Join(traceDir, seedEntry.Name()))
					continue
				}
				locs = append(locs, RunLocation{
					Identity: RunIdentity{
						Condition: condEntry.Name(),
						TraceID:   traceEntry.Name(),
						Seed:      seed,
					},
					Dir: filepath.Join(traceDir, seedEntry.Name()),
				})
			}
		}
	}
	return locs, nil
}
