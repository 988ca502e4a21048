package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	corecatalog "github.com/pierreba/era/core/catalog"
	"github.com/pierreba/era/core/model"
	_ "modernc.org/sqlite"
)

// SQLiteCatalog persists the resource pool in a SQLite database.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates the database and ensures schema.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS resources (
        id TEXT PRIMARY KEY,
        name TEXT,
        type TEXT,
        capabilities TEXT,
        personnel INTEGER,
        capacity INTEGER,
        lat REAL,
        lon REAL,
        area TEXT,
        status TEXT,
        eta_minutes REAL,
        cost_per_hour REAL,
        risk_factor REAL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteCatalog{db: db}, nil
}

// Upsert inserts or replaces a resource row.
func (c *SQLiteCatalog) Upsert(ctx context.Context, r model.ResourceCandidate) error {
	caps, err := json.Marshal(r.Capabilities)
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO resources
        (id, name, type, capabilities, personnel, capacity, lat, lon, area, status, eta_minutes, cost_per_hour, risk_factor)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            type = excluded.type,
            capabilities = excluded.capabilities,
            personnel = excluded.personnel,
            capacity = excluded.capacity,
            lat = excluded.lat,
            lon = excluded.lon,
            area = excluded.area,
            status = excluded.status,
            eta_minutes = excluded.eta_minutes,
            cost_per_hour = excluded.cost_per_hour,
            risk_factor = excluded.risk_factor`,
		r.ID, r.Name, string(r.Type), string(caps), r.AvailablePersonnel, r.RescueCapacity,
		r.Location.Lat, r.Location.Lon, r.Area, string(r.Status), r.ETAMinutes, r.CostPerHour, r.RiskFactor)
	return err
}

// Query returns matching resources bounded by the explicit MaxResults.
// Capability matching happens in Go over the decoded capability list.
func (c *SQLiteCatalog) Query(ctx context.Context, req corecatalog.QueryRequest) ([]model.ResourceCandidate, error) {
	if req.MaxResults <= 0 {
		return nil, corecatalog.ErrMaxResultsRequired
	}
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, type, capabilities, personnel, capacity,
        lat, lon, area, status, eta_minutes, cost_per_hour, risk_factor
        FROM resources WHERE status IN ('available', 'standby') ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ResourceCandidate
	for rows.Next() {
		var r model.ResourceCandidate
		var caps, typ, status string
		if err := rows.Scan(&r.ID, &r.Name, &typ, &caps, &r.AvailablePersonnel, &r.RescueCapacity,
			&r.Location.Lat, &r.Location.Lon, &r.Area, &status, &r.ETAMinutes, &r.CostPerHour, &r.RiskFactor); err != nil {
			return nil, err
		}
		r.Type = model.ResourceType(typ)
		r.Status = model.ResourceStatus(status)
		if caps != "" {
			if err := json.Unmarshal([]byte(caps), &r.Capabilities); err != nil {
				return nil, fmt.Errorf("decode capabilities for %s: %w", r.ID, err)
			}
		}
		if !corecatalog.Matches(r, req) {
			continue
		}
		out = append(out, r)
		if len(out) == req.MaxResults {
			break
		}
	}
	return out, rows.Err()
}

// MarkUnavailable transitions committed resources to deployed.
func (c *SQLiteCatalog) MarkUnavailable(ctx context.Context, resourceIDs []string) error {
	for _, id := range resourceIDs {
		if _, err := c.db.ExecContext(ctx, `UPDATE resources SET status = 'deployed' WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (c *SQLiteCatalog) Close() error { return c.db.Close() }
