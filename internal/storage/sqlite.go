package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/studydesk/internal/fileid"
	"github.com/hyperjump/studydesk/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Rows keep the full JSON of the
// record; indexed columns exist only for lookups and ordering.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes transactions, so the duplicate check and
	// the insert cannot interleave with another writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS file_records (
		id TEXT NOT NULL,
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		title TEXT NOT NULL,
		data TEXT NOT NULL,
		upload_date TIMESTAMP NOT NULL,
		PRIMARY KEY (category, id),
		UNIQUE (category, name)
	);

	CREATE INDEX IF NOT EXISTS idx_file_records_title ON file_records(category, title);

	CREATE TABLE IF NOT EXISTS record_sequences (
		category TEXT PRIMARY KEY,
		next_seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tutors (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		student_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

func scanJSON[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListRecords returns every record of the category in insertion order.
func (s *SQLiteStorage) ListRecords(ctx context.Context, c models.Category) ([]models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM file_records WHERE category = ? ORDER BY rowid`, string(c))
	if err != nil {
		return nil, err
	}
	return scanJSON[models.FileRecord](rows)
}

// InsertRecord checks the name, takes the next sequence and inserts rec in one transaction.
func (s *SQLiteStorage) InsertRecord(ctx context.Context, c models.Category, rec *models.FileRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT data FROM file_records
		 WHERE category = ? AND (name IN (?, ?) OR title IN (?, ?))
		 ORDER BY rowid`,
		string(c), rec.Name, rec.Title, rec.Name, rec.Title,
	)
	if err != nil {
		return err
	}
	candidates, err := scanJSON[models.FileRecord](rows)
	if err != nil {
		return err
	}
	if dup, ok := findDuplicate(candidates, rec); ok {
		return &DuplicateError{Category: c, Existing: dup}
	}

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT next_seq FROM record_sequences WHERE category = ?`, string(c)).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		seq = 1
	} else if err != nil {
		return err
	}

	rec.ID = fileid.RecordID(c.IDPrefix(), seq)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO file_records (id, category, name, title, data, upload_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(c), rec.Name, rec.Title, string(data), rec.UploadDate,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO record_sequences (category, next_seq) VALUES (?, ?)
		 ON CONFLICT(category) DO UPDATE SET next_seq = excluded.next_seq`,
		string(c), seq+1,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRecord removes the record with id and returns it.
func (s *SQLiteStorage) DeleteRecord(ctx context.Context, c models.Category, id string) (*models.FileRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM file_records WHERE category = ? AND id = ?`, string(c), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s record %s: %w", c, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rec models.FileRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM file_records WHERE category = ? AND id = ?`, string(c), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountRecords returns the number of records in the category.
func (s *SQLiteStorage) CountRecords(ctx context.Context, c models.Category) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_records WHERE category = ?`, string(c)).Scan(&count)
	return count, err
}

// ListTutors returns all tutors, newest first.
func (s *SQLiteStorage) ListTutors(ctx context.Context) ([]models.Tutor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM tutors ORDER BY rowid DESC`)
	if err != nil {
		return nil, err
	}
	return scanJSON[models.Tutor](rows)
}

// CreateTutor inserts tutor.
func (s *SQLiteStorage) CreateTutor(ctx context.Context, tutor *models.Tutor) error {
	data, err := json.Marshal(tutor)
	if err != nil {
		return fmt.Errorf("failed to marshal tutor: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tutors (id, data, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		tutor.ID, string(data), tutor.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tutor %s: %w", tutor.ID, ErrDuplicate)
	}
	return nil
}

// UpdateTutor applies fn to the tutor with id.
func (s *SQLiteStorage) UpdateTutor(ctx context.Context, id string, fn func(*models.Tutor) error) (*models.Tutor, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM tutors WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tutor %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var t models.Tutor
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tutor: %w", err)
	}
	if err := fn(&t); err != nil {
		return nil, err
	}
	t.ID = id
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tutor: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tutors SET data = ? WHERE id = ?`, string(b), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTutor removes the tutor with id.
func (s *SQLiteStorage) DeleteTutor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tutors WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tutor %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListUsers returns stored users, passwords included, and the table metadata.
func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]models.User, models.UsersMetadata, error) {
	var meta models.UsersMetadata
	rows, err := s.db.QueryContext(ctx, `SELECT data, updated_at FROM users ORDER BY rowid`)
	if err != nil {
		return nil, meta, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var data string
		var updated time.Time
		if err := rows.Scan(&data, &updated); err != nil {
			return nil, meta, err
		}
		var u models.User
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return nil, meta, fmt.Errorf("failed to unmarshal user: %w", err)
		}
		users = append(users, u)
		if updated.After(meta.LastUpdated) {
			meta.LastUpdated = updated
		}
	}
	meta.TotalUsers = len(users)
	return users, meta, rows.Err()
}

// GetUser returns the user with studentID.
func (s *SQLiteStorage) GetUser(ctx context.Context, studentID string) (*models.User, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM users WHERE student_id = ?`, studentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", studentID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts user unless the student ID is taken.
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (student_id, data, updated_at) VALUES (?, ?, ?) ON CONFLICT(student_id) DO NOTHING`,
		user.StudentID, string(data), time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", user.StudentID, ErrDuplicate)
	}
	return nil
}

// UpdateUser applies fn to the user with studentID. The student ID never changes.
func (s *SQLiteStorage) UpdateUser(ctx context.Context, studentID string, fn func(*models.User) error) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM users WHERE student_id = ?`, studentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", studentID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	if err := fn(&u); err != nil {
		return nil, err
	}
	u.StudentID = studentID
	b, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET data = ?, updated_at = ? WHERE student_id = ?`,
		string(b), time.Now().UTC(), studentID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &u, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
