package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeblew999/plat-sheets/internal/sheet"
)

// ErrNoSnapshot is returned by Load when a kind was never saved.
var ErrNoSnapshot = errors.New("db: no snapshot")

// Snapshot is the last rows that built a layer successfully.
type Snapshot struct {
	Kind      string
	Source    string
	FetchedAt time.Time
	Rows      []sheet.Row
}

// SnapshotStat describes a stored snapshot without its rows.
type SnapshotStat struct {
	Kind      string    `json:"kind" doc:"Layer kind"`
	Source    string    `json:"source" doc:"Where the rows were read from"`
	FetchedAt time.Time `json:"fetchedAt" doc:"When the rows were read"`
	RowCount  int       `json:"rowCount" doc:"Number of rows stored"`
}

// SnapshotStore reads and writes sheet_snapshots. One row per kind; saving
// replaces the previous snapshot.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore wraps a database opened with Open.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save stores snap, replacing any snapshot of the same kind.
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	rows := snap.Rows
	if rows == nil {
		rows = []sheet.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("db: encode %s rows: %w", snap.Kind, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sheet_snapshots (kind, source, fetched_at, row_count, payload) VALUES (?, ?, ?, ?, ?)`,
		snap.Kind, snap.Source, snap.FetchedAt.UTC(), len(rows), string(data))
	if err != nil {
		return fmt.Errorf("db: save %s snapshot: %w", snap.Kind, err)
	}
	return nil
}

// Load returns the snapshot for kind.
func (s *SnapshotStore) Load(ctx context.Context, kind string) (*Snapshot, error) {
	snap := Snapshot{Kind: kind}
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT source, fetched_at, payload FROM sheet_snapshots WHERE kind = ?`, kind,
	).Scan(&snap.Source, &snap.FetchedAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s", ErrNoSnapshot, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("db: load %s snapshot: %w", kind, err)
	}

	if err := json.Unmarshal([]byte(data), &snap.Rows); err != nil {
		return nil, fmt.Errorf("db: decode %s rows: %w", kind, err)
	}
	return &snap, nil
}

// Stats lists every stored snapshot, ordered by kind.
func (s *SnapshotStore) Stats(ctx context.Context) ([]SnapshotStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, source, fetched_at, row_count FROM sheet_snapshots ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("db: list snapshots: %w", err)
	}
	defer rows.Close()

	stats := []SnapshotStat{}
	for rows.Next() {
		var st SnapshotStat
		if err := rows.Scan(&st.Kind, &st.Source, &st.FetchedAt, &st.RowCount); err != nil {
			return nil, fmt.Errorf("db: scan snapshot: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
