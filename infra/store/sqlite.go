package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sosgrid/sosd/core/model"
	corestore "github.com/sosgrid/sosd/core/store"
)

// SQLiteStore persists emergency records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS emergencies (
        id TEXT PRIMARY KEY,
        type TEXT NOT NULL,
        latitude REAL NOT NULL,
        longitude REAL NOT NULL,
        priority TEXT NOT NULL,
        status TEXT NOT NULL,
        assigned_teams TEXT NOT NULL DEFAULT '[]',
        user_id TEXT,
        user_info TEXT,
        created_at INTEGER NOT NULL,
        resolved_at INTEGER
    );
    CREATE INDEX IF NOT EXISTS idx_emergencies_status ON emergencies(status);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Create persists a new record.
func (s *SQLiteStore) Create(ctx context.Context, em model.Emergency) error {
	teams, err := json.Marshal(em.AssignedTeams)
	if err != nil {
		return err
	}
	var resolved any
	if em.ResolvedAt != nil {
		resolved = em.ResolvedAt.UnixMilli()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO emergencies (id, type, latitude, longitude, priority, status, assigned_teams, user_id, user_info, created_at, resolved_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		em.ID, em.Type, em.Location.Latitude, em.Location.Longitude,
		string(em.Priority), string(em.Status), string(teams),
		em.UserID, em.UserInfo, em.CreatedAt.UnixMilli(), resolved)
	return err
}

// FindByID returns the record or corestore.ErrNotFound.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (model.Emergency, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, latitude, longitude, priority, status, assigned_teams, user_id, user_info, created_at, resolved_at
         FROM emergencies WHERE id = ?`, id)
	em, err := scanEmergency(row)
	if err == sql.ErrNoRows {
		return model.Emergency{}, corestore.ErrNotFound
	}
	return em, err
}

// FindByStatus returns matching records, oldest first.
func (s *SQLiteStore) FindByStatus(ctx context.Context, status model.EmergencyStatus) ([]model.Emergency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, latitude, longitude, priority, status, assigned_teams, user_id, user_info, created_at, resolved_at
         FROM emergencies WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Emergency
	for rows.Next() {
		em, err := scanEmergency(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, em)
	}
	return res, rows.Err()
}

// SetAssignment replaces the assigned teams and marks the record assigned.
func (s *SQLiteStore) SetAssignment(ctx context.Context, id string, teamIDs []string) error {
	teams, err := json.Marshal(teamIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE emergencies SET assigned_teams = ?, status = ? WHERE id = ?`,
		string(teams), string(model.EmergencyAssigned), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetStatus moves the record to status, storing resolvedAt for resolutions.
func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status model.EmergencyStatus, resolvedAt time.Time) error {
	var (
		res sql.Result
		err error
	)
	if status == model.EmergencyResolved {
		res, err = s.db.ExecContext(ctx,
			`UPDATE emergencies SET status = ?, resolved_at = ? WHERE id = ?`,
			string(status), resolvedAt.UnixMilli(), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE emergencies SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return corestore.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmergency(row rowScanner) (model.Emergency, error) {
	var (
		em        model.Emergency
		priority  string
		status    string
		teams     string
		userID    sql.NullString
		userInfo  sql.NullString
		createdAt int64
		resolved  sql.NullInt64
	)
	err := row.Scan(&em.ID, &em.Type, &em.Location.Latitude, &em.Location.Longitude,
		&priority, &status, &teams, &userID, &userInfo, &createdAt, &resolved)
	if err != nil {
		return model.Emergency{}, err
	}
	em.Priority = model.Priority(priority)
	em.Status = model.EmergencyStatus(status)
	if err := json.Unmarshal([]byte(teams), &em.AssignedTeams); err != nil {
		return model.Emergency{}, err
	}
	em.UserID = userID.String
	em.UserInfo = userInfo.String
	em.CreatedAt = time.UnixMilli(createdAt).UTC()
	if resolved.Valid {
		at := time.UnixMilli(resolved.Int64).UTC()
		em.ResolvedAt = &at
	}
	return em, nil
}
