package db

import (
	"context"
	"database/sql"
	"fmt"
)

// SeedDev inserts a small employee roster so a dev environment has someone
// to match scans against. In prod the employees table is synced from the HR
// system and this never runs.
func SeedDev(ctx context.Context, conn *sql.DB) error {
	roster := []struct {
		id    int
		first string
		last  string
	}{
		{1001, "Ada", "Lovelace"},
		{1002, "Grace", "Hopper"},
		{1003, "Edsger", "Dijkstra"},
	}

	for _, e := range roster {
		if _, err := conn.ExecContext(ctx, `
INSERT INTO employees(id, first_name, last_name)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  first_name = excluded.first_name,
  last_name  = excluded.last_name;
`, e.id, e.first, e.last); err != nil {
			return fmt.Errorf("seed employee %d: %w", e.id, err)
		}
	}

	return nil
}
