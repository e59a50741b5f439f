package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/envelope.report/internal/envelope"
)

// SnapshotInfo describes one persisted run-record snapshot.
type SnapshotInfo struct {
	BatchID     string
	RunsRoot    string
	RecordCount int
	CreatedAt   int64
}

// SnapshotRecords replaces the stored run-record table with the given
// records. The previous snapshot is deleted and the new one inserted inside
// a single transaction, so readers never observe a partial table and
// re-running the pipeline is idempotent.
func (db *DB) SnapshotRecords(runsRoot string, records []envelope.RunRecord) (*SnapshotInfo, error) {
	info := &SnapshotInfo{
		BatchID:     uuid.New().String(),
		RunsRoot:    runsRoot,
		RecordCount: len(records),
		CreatedAt:   time.Now().UnixNano(),
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_records`); err != nil {
		return nil, fmt.Errorf("clear run_records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshot_batches`); err != nil {
		return nil, fmt.Errorf("clear snapshot_batches: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO snapshot_batches (batch_id, runs_root, record_count, created_at)
		VALUES (?, ?, ?, ?)`,
		info.BatchID, info.RunsRoot, info.RecordCount, info.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert snapshot batch: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_records (
			batch_id, trace_id, seed, condition, pattern_label, config_hash, effective_source,
			tempo_req, tempo_eff, tempo_req_oob, tempo_eff_oob, tempo_clamped, tempo_delta,
			gain_req, gain_eff, gain_req_oob, gain_eff_oob, gain_clamped, gain_delta, gain_unit,
			accent_req, accent_eff, accent_req_oob, accent_eff_oob, accent_clamped, accent_delta,
			accent_pct_req, accent_pct_eff,
			integrated_lufs, lra_lu, onset_density_eps, peak_lufs, audio_path, session_report_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare run_records insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if _, err := stmt.Exec(
			info.BatchID, r.TraceID, r.Seed, r.Condition, r.PatternLabel, r.ConfigHash, r.EffectiveSource.String(),
			r.Tempo.Requested, r.Tempo.Effective, r.Tempo.RequestedOOB, r.Tempo.EffectiveOOB, r.Tempo.Clamped, r.Tempo.Delta,
			r.Gain.Requested, r.Gain.Effective, r.Gain.RequestedOOB, r.Gain.EffectiveOOB, r.Gain.Clamped, r.Gain.Delta, r.GainUnit,
			r.Accent.Requested, r.Accent.Effective, r.Accent.RequestedOOB, r.Accent.EffectiveOOB, r.Accent.Clamped, r.Accent.Delta,
			r.AccentPctReq, r.AccentPctEff,
			r.IntegratedLUFS, r.LRALU, r.OnsetDensityEPS, r.PeakLUFS, r.AudioPath, r.SessionReportPath,
		); err != nil {
			return nil, fmt.Errorf("insert run record %s/%s/%d: %w", r.Condition, r.TraceID, r.Seed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return info, nil
}

// LatestSnapshot returns the stored snapshot batch, or ok=false when the
// database holds none.
func (db *DB) LatestSnapshot() (*SnapshotInfo, bool, error) {
	row := db.QueryRow(`
		SELECT batch_id, runs_root, record_count, created_at
		FROM snapshot_batches
		ORDER BY created_at DESC
		LIMIT 1`)

	var info SnapshotInfo
	if err := row.Scan(&info.BatchID, &info.RunsRoot, &info.RecordCount, &info.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query snapshot batch: %w", err)
	}
	return &info, true, nil
}

// CountRecords returns the number of stored run records.
func (db *DB) CountRecords() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM run_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count run_records: %w", err)
	}
	return n, nil
}
