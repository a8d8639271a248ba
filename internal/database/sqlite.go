// internal/database/sqlite.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sstent/stridetrack-go/internal/models"
	"github.com/sstent/stridetrack-go/internal/tracking"
)

const timeLayout = "2006-01-02 15:04:05.000"

var (
	_ Database               = (*SQLiteDB)(nil)
	_ tracking.SnapshotStore = (*SQLiteDB)(nil)
	_ tracking.History       = (*SQLiteDB)(nil)
)

// SQLiteDB stores archived activities and the in-progress session snapshot.
type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	sqlite := &SQLiteDB{db: db}

	// Create tables
	if err := sqlite.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sqlite, nil
}

func (s *SQLiteDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		unit TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration REAL,
		distance REAL,
		pace REAL,
		elevation_gain REAL,
		elevation_loss REAL,
		steps INTEGER,
		splits TEXT NOT NULL DEFAULT '[]',
		failed BOOLEAN DEFAULT FALSE,
		failure_reason TEXT DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_start_time ON activities(start_time);
	CREATE INDEX IF NOT EXISTS idx_activities_activity_type ON activities(activity_type);

	CREATE TABLE IF NOT EXISTS session_snapshots (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

const activityColumns = `id, session_id, activity_type, unit, start_time, end_time,
	duration, distance, pace, elevation_gain, elevation_loss, steps,
	splits, failed, failure_reason, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (Activity, error) {
	var a Activity
	var startTime, endTime, createdAt, splits string

	err := row.Scan(
		&a.ID, &a.SessionID, &a.ActivityType, &a.Unit, &startTime, &endTime,
		&a.Duration, &a.Distance, &a.Pace, &a.ElevationGain, &a.ElevationLoss, &a.Steps,
		&splits, &a.Failed, &a.FailureReason, &createdAt,
	)
	if err != nil {
		return Activity{}, err
	}

	// Parse time strings
	if a.StartTime, err = time.Parse(timeLayout, startTime); err != nil {
		return Activity{}, fmt.Errorf("parse start_time: %w", err)
	}
	if a.EndTime, err = time.Parse(timeLayout, endTime); err != nil {
		return Activity{}, fmt.Errorf("parse end_time: %w", err)
	}
	if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Activity{}, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(splits), &a.Splits); err != nil {
		return Activity{}, fmt.Errorf("decode splits: %w", err)
	}
	return a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Archive stores a finished session. Archiving the same session twice keeps
// the first record.
func (s *SQLiteDB) Archive(ctx context.Context, result models.SessionResult) error {
	a := activityFromResult(result)
	if a.Splits == nil {
		a.Splits = []models.Split{}
	}
	splits, err := json.Marshal(a.Splits)
	if err != nil {
		return fmt.Errorf("encode splits: %w", err)
	}

	query := `
	INSERT INTO activities (
		session_id, activity_type, unit, start_time, end_time,
		duration, distance, pace, elevation_gain, elevation_loss, steps,
		splits, failed, failure_reason, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO NOTHING`

	_, err = s.db.ExecContext(ctx, query,
		a.SessionID, a.ActivityType, a.Unit,
		formatTime(a.StartTime), formatTime(a.EndTime),
		a.Duration, a.Distance, a.Pace, a.ElevationGain, a.ElevationLoss, a.Steps,
		string(splits), a.Failed, a.FailureReason, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert activity %s: %w", a.SessionID, err)
	}
	return nil
}

func (s *SQLiteDB) GetActivities(ctx context.Context, limit, offset int) ([]Activity, error) {
	return s.FilterActivities(ctx, ActivityFilters{Limit: limit, Offset: offset})
}

func (s *SQLiteDB) GetActivity(ctx context.Context, sessionID string) (*Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE session_id = ?`

	a, err := scanActivity(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteDB) DeleteActivity(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE session_id = ?`, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(distance), 0), COALESCE(SUM(duration), 0)
	FROM activities`).Scan(&stats.Total, &stats.TotalDistance, &stats.TotalDuration)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities WHERE failed = TRUE").Scan(&stats.Failed)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

var sortColumns = map[string]string{
	"":              "start_time",
	"start_time":    "start_time",
	"distance":      "distance",
	"duration":      "duration",
	"pace":          "pace",
	"activity_type": "activity_type",
}

func (s *SQLiteDB) FilterActivities(ctx context.Context, filters ActivityFilters) ([]Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE 1=1`

	var args []interface{}
	var conditions []string

	// Build WHERE conditions
	if filters.ActivityType != "" {
		conditions = append(conditions, "activity_type = ?")
		args = append(args, filters.ActivityType)
	}

	if filters.DateFrom != nil {
		conditions = append(conditions, "start_time >= ?")
		args = append(args, formatTime(*filters.DateFrom))
	}

	if filters.DateTo != nil {
		conditions = append(conditions, "start_time <= ?")
		args = append(args, formatTime(*filters.DateTo))
	}

	if filters.MinDistance > 0 {
		conditions = append(conditions, "distance >= ?")
		args = append(args, filters.MinDistance)
	}

	if filters.MaxDistance > 0 {
		conditions = append(conditions, "distance <= ?")
		args = append(args, filters.MaxDistance)
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	orderBy, ok := sortColumns[filters.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: cannot sort by %q", ErrInvalidFilter, filters.SortBy)
	}

	order := "DESC"
	if filters.SortOrder == "asc" {
		order = "ASC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s, id %s", orderBy, order, order)

	// Add pagination
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)

		if filters.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filters.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	return activities, rows.Err()
}

// Get returns the stored value for key, or nil if there is none.
func (s *SQLiteDB) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session_snapshots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteDB) Set(ctx context.Context, key string, value []byte) error {
	query := `
	INSERT INTO session_snapshots (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, key, value, formatTime(time.Now())); err != nil {
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteDB) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
