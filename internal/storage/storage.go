// Package storage persists file records, tutor profiles and user accounts.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/studydesk/internal/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique name or key is already taken.
	ErrDuplicate = errors.New("already exists")
)

// DuplicateError reports a name collision in a category and carries the record
// already holding the name. It matches ErrDuplicate.
type DuplicateError struct {
	Category models.Category
	Existing models.FileRecord
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %q already exists as %s", e.Category, e.Existing.DisplayName(), e.Existing.ID)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// Storage defines persistence for every table. Each mutation is atomic with
// respect to other mutations of the same table.
type Storage interface {
	// File records
	ListRecords(ctx context.Context, category models.Category) ([]models.FileRecord, error)
	// InsertRecord assigns rec.ID from the category's sequence and appends rec.
	// It returns *DuplicateError when the name or title is taken.
	InsertRecord(ctx context.Context, category models.Category, rec *models.FileRecord) error
	// DeleteRecord removes the record and returns it.
	DeleteRecord(ctx context.Context, category models.Category, id string) (*models.FileRecord, error)
	CountRecords(ctx context.Context, category models.Category) (int, error)

	// Tutors, newest first
	ListTutors(ctx context.Context) ([]models.Tutor, error)
	CreateTutor(ctx context.Context, tutor *models.Tutor) error
	UpdateTutor(ctx context.Context, id string, fn func(*models.Tutor) error) (*models.Tutor, error)
	DeleteTutor(ctx context.Context, id string) error

	// Users
	ListUsers(ctx context.Context) ([]models.User, models.UsersMetadata, error)
	GetUser(ctx context.Context, studentID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	// UpdateUser applies fn to the stored user and persists the result. An error
	// from fn aborts the update and is returned unchanged.
	UpdateUser(ctx context.Context, studentID string, fn func(*models.User) error) (*models.User, error)

	Close() error
}

// Open returns the backend selected by driver: "json" keeps one file per table
// under dir, "sqlite" uses the database at dbPath.
func Open(driver, dir, dbPath string) (Storage, error) {
	switch driver {
	case "", "json":
		return NewJSONStorage(dir)
	case "sqlite":
		return NewSQLiteStorage(dbPath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// findDuplicate returns the first record named like rec.
func findDuplicate(records []models.FileRecord, rec *models.FileRecord) (models.FileRecord, bool) {
	for _, r := range records {
		if r.SameName(rec.Name) || r.SameName(rec.Title) {
			return r, true
		}
	}
	return models.FileRecord{}, false
}
