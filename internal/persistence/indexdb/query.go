package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"

	"wiregrid.ai/internal/protocol"
)

type CircuitEventRow struct {
	Seq   uint64                `json:"seq"`
	Tick  uint64                `json:"tick"`
	Event protocol.CircuitEvent `json:"event"`
}

// CircuitHistory returns the newest events that named circuit, as the
// owner of a wire or as either side of a split, newest first.
func (s *SQLiteIndex) CircuitHistory(ctx context.Context, circuit uint64, limit int) ([]CircuitEventRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tick, kind, entity_a, entity_b, wire_id, circuit_id, from_circuit_id, wire_ids
		FROM circuit_events
		WHERE circuit_id = ? OR from_circuit_id = ?
		ORDER BY seq DESC, idx DESC
		LIMIT ?`, int64(circuit), int64(circuit), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CircuitEventRow
	for rows.Next() {
		var (
			r   CircuitEventRow
			ids sql.NullString
		)
		if err := rows.Scan(&r.Seq, &r.Tick, &r.Event.Kind, &r.Event.EntityA, &r.Event.EntityB,
			&r.Event.WireID, &r.Event.CircuitID, &r.Event.FromCircuitID, &ids); err != nil {
			return nil, err
		}
		if ids.Valid && ids.String != "" {
			if err := json.Unmarshal([]byte(ids.String), &r.Event.WireIDs); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestStats returns the most recent stats sample.
func (s *SQLiteIndex) LatestStats(ctx context.Context) (uint64, []protocol.CircuitStats, error) {
	var tick sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(tick) FROM circuit_stats`).Scan(&tick); err != nil {
		return 0, nil, err
	}
	if !tick.Valid {
		return 0, nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT circuit_id, wires, total_supply, total_demand
		FROM circuit_stats WHERE tick = ? ORDER BY circuit_id`, tick.Int64)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var out []protocol.CircuitStats
	for rows.Next() {
		var c protocol.CircuitStats
		if err := rows.Scan(&c.CircuitID, &c.Wires, &c.TotalSupply, &c.TotalDemand); err != nil {
			return 0, nil, err
		}
		out = append(out, c)
	}
	return uint64(tick.Int64), out, rows.Err()
}
