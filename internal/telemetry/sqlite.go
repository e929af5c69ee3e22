package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timestampFormat is fixed width so stored timestamps sort lexically.
	timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// ObservedField is one observation sequence started by the scheduler.
type ObservedField struct {
	SeqTime   string    `json:"seq_time"`
	FieldName string    `json:"field_name"`
	Merit     float64   `json:"merit"`
	Started   time.Time `json:"started"`
}

// SQLiteStore implements Store using SQLite.
//
// The latest document per collection lives in current_status; every insert
// is also appended to status_history. Documents are stored as JSON.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store over an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteStore: Store ready for use
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// InsertCurrent upserts the latest document of collection and appends it to the history.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - collection: Collection name (state, safety, status, weather, power)
//   - data: Document to persist; nil is stored as an empty object
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) InsertCurrent(ctx context.Context, collection string, data map[string]any) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	if data == nil {
		data = map[string]any{}
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling %s document: %w", collection, err)
	}
	recorded := s.now().UTC().Format(timestampFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO current_status (collection, data, recorded) VALUES (?, ?, ?)
		 ON CONFLICT(collection) DO UPDATE SET data = excluded.data, recorded = excluded.recorded`,
		collection, string(dataJSON), recorded,
	)
	if err != nil {
		return fmt.Errorf("upserting current %s: %w", collection, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO status_history (collection, data, recorded) VALUES (?, ?, ?)",
		collection, string(dataJSON), recorded,
	)
	if err != nil {
		return fmt.Errorf("inserting %s history: %w", collection, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s document: %w", collection, err)
	}
	return nil
}

// GetCurrent returns the latest document of collection, or ErrNoRecord.
func (s *SQLiteStore) GetCurrent(ctx context.Context, collection string) (*Record, error) {
	var dataJSON, recorded string
	err := s.db.QueryRowContext(ctx,
		"SELECT data, recorded FROM current_status WHERE collection = ?",
		collection,
	).Scan(&dataJSON, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("querying current %s: %w", collection, err)
	}

	return decodeRecord(collection, dataJSON, recorded)
}

// History returns recent documents of a collection, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - collection: Collection name
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Record: Documents ordered newest first
//   - error: nil on success, otherwise the underlying query error
func (s *SQLiteStore) History(ctx context.Context, collection string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data, recorded
		 FROM status_history
		 WHERE collection = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		collection,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", collection, err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var dataJSON, recorded string
		if err := rows.Scan(&dataJSON, &recorded); err != nil {
			return nil, fmt.Errorf("scanning %s history: %w", collection, err)
		}
		rec, err := decodeRecord(collection, dataJSON, recorded)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s history: %w", collection, err)
	}

	return records, nil
}

// PruneHistory deletes history entries older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := s.now().UTC().Add(-olderThan).Format(timestampFormat)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM status_history WHERE recorded < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting status history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// RecordObservedField stores the start of an observation sequence.
// A repeated seqTime replaces the earlier row.
func (s *SQLiteStore) RecordObservedField(ctx context.Context, f ObservedField) error {
	if f.SeqTime == "" || f.FieldName == "" {
		return fmt.Errorf("seq_time and field_name are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observed_fields (seq_time, field_name, merit, started) VALUES (?, ?, ?, ?)
		 ON CONFLICT(seq_time) DO UPDATE SET field_name = excluded.field_name,
		   merit = excluded.merit, started = excluded.started`,
		f.SeqTime, f.FieldName, f.Merit, f.Started.UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting observed field: %w", err)
	}
	return nil
}

// ObservedFields returns recently started sequences, newest first.
func (s *SQLiteStore) ObservedFields(ctx context.Context, limit int) ([]ObservedField, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq_time, field_name, merit, started
		 FROM observed_fields
		 ORDER BY started DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying observed fields: %w", err)
	}
	defer rows.Close()

	var fields []ObservedField
	for rows.Next() {
		var f ObservedField
		var started string
		if err := rows.Scan(&f.SeqTime, &f.FieldName, &f.Merit, &started); err != nil {
			return nil, fmt.Errorf("scanning observed field: %w", err)
		}
		ts, err := parseTimestamp(started)
		if err != nil {
			return nil, err
		}
		f.Started = ts
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating observed fields: %w", err)
	}
	return fields, nil
}

func decodeRecord(collection, dataJSON, recorded string) (*Record, error) {
	rec := &Record{Collection: collection}
	if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling %s document: %w", collection, err)
	}
	ts, err := parseTimestamp(recorded)
	if err != nil {
		return nil, err
	}
	rec.Recorded = ts
	return rec, nil
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return ts, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
}
