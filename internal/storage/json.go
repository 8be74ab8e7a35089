package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/studydesk/internal/fileid"
	"github.com/hyperjump/studydesk/internal/models"
)

const (
	tutorsTable = "tutors"
	usersTable  = "users"
	metadataKey = "metadata"
)

// document is the top-level object of a table file. Keys other than the ones a
// table reads are written back untouched.
type document map[string]json.RawMessage

type recordMeta struct {
	NextSeq int `json:"nextSeq"`
}

// JSONStorage implements Storage with one JSON file per table. Every mutation
// holds the table's mutex across read, modify and write, and files are replaced
// atomically by rename.
type JSONStorage struct {
	dir   string
	locks map[string]*sync.Mutex
}

// NewJSONStorage stores tables under dir, creating it if needed.
func NewJSONStorage(dir string) (*JSONStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	s := &JSONStorage{dir: dir, locks: make(map[string]*sync.Mutex)}
	for _, c := range models.Categories {
		s.locks[c.TableName()] = &sync.Mutex{}
	}
	s.locks[tutorsTable] = &sync.Mutex{}
	s.locks[usersTable] = &sync.Mutex{}
	return s, nil
}

// Path returns the file backing table.
func (s *JSONStorage) Path(table string) string {
	return filepath.Join(s.dir, table+".json")
}

func (s *JSONStorage) lock(ctx context.Context, table string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mu, ok := s.locks[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	mu.Lock()
	return mu.Unlock, nil
}

// read loads a table file. A missing file is an empty table.
func (s *JSONStorage) read(table string) (document, error) {
	b, err := os.ReadFile(s.Path(table))
	if errors.Is(err, os.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	doc := document{}
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", table, err)
	}
	return doc, nil
}

// write replaces the table file through a temp file in the same directory.
func (s *JSONStorage) write(table string, doc document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	tmp, err := os.CreateTemp(s.dir, table+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", table, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", table, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(table)); err != nil {
		return fmt.Errorf("replace %s: %w", table, err)
	}
	return nil
}

func getField[T any](doc document, key string, dst *T) error {
	raw, ok := doc[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

func setField(doc document, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	doc[key] = b
	return nil
}

// records

func (s *JSONStorage) readRecords(c models.Category) (document, []models.FileRecord, recordMeta, error) {
	var meta recordMeta
	doc, err := s.read(c.TableName())
	if err != nil {
		return nil, nil, meta, err
	}
	records := []models.FileRecord{}
	if err := getField(doc, string(c), &records); err != nil {
		return nil, nil, meta, fmt.Errorf("%s: %w", c, err)
	}
	if err := getField(doc, metadataKey, &meta); err != nil {
		return nil, nil, meta, fmt.Errorf("%s: %w", c, err)
	}
	if records == nil {
		records = []models.FileRecord{}
	}
	return doc, records, meta, nil
}

func (s *JSONStorage) writeRecords(c models.Category, doc document, records []models.FileRecord, meta recordMeta) error {
	if err := setField(doc, string(c), records); err != nil {
		return err
	}
	if err := setField(doc, metadataKey, meta); err != nil {
		return err
	}
	return s.write(c.TableName(), doc)
}

// nextSequence returns the sequence for the next insert. Tables written before
// the counter existed continue after the highest issued suffix.
func nextSequence(c models.Category, records []models.FileRecord, meta recordMeta) int {
	if meta.NextSeq > 0 {
		return meta.NextSeq
	}
	next := len(records) + 1
	for _, r := range records {
		if n, ok := fileid.Sequence(c.IDPrefix(), r.ID); ok && n >= next {
			next = n + 1
		}
	}
	return next
}

// ListRecords returns every record of the category in insertion order.
func (s *JSONStorage) ListRecords(ctx context.Context, c models.Category) ([]models.FileRecord, error) {
	unlock, err := s.lock(ctx, c.TableName())
	if err != nil {
		return nil, err
	}
	defer unlock()
	_, records, _, err := s.readRecords(c)
	return records, err
}

// InsertRecord checks the name, assigns the next ID and appends rec in one step.
func (s *JSONStorage) InsertRecord(ctx context.Context, c models.Category, rec *models.FileRecord) error {
	unlock, err := s.lock(ctx, c.TableName())
	if err != nil {
		return err
	}
	defer unlock()

	doc, records, meta, err := s.readRecords(c)
	if err != nil {
		return err
	}
	if existing, ok := findDuplicate(records, rec); ok {
		return &DuplicateError{Category: c, Existing: existing}
	}
	seq := nextSequence(c, records, meta)
	rec.ID = fileid.RecordID(c.IDPrefix(), seq)
	records = append(records, *rec)
	meta.NextSeq = seq + 1
	return s.writeRecords(c, doc, records, meta)
}

// DeleteRecord removes the record with id and returns it.
func (s *JSONStorage) DeleteRecord(ctx context.Context, c models.Category, id string) (*models.FileRecord, error) {
	unlock, err := s.lock(ctx, c.TableName())
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, records, meta, err := s.readRecords(c)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		if r.ID != id {
			continue
		}
		if meta.NextSeq == 0 {
			meta.NextSeq = nextSequence(c, records, meta)
		}
		records = append(records[:i], records[i+1:]...)
		if err := s.writeRecords(c, doc, records, meta); err != nil {
			return nil, err
		}
		return &r, nil
	}
	return nil, fmt.Errorf("%s record %s: %w", c, id, ErrNotFound)
}

// CountRecords returns the number of records in the category.
func (s *JSONStorage) CountRecords(ctx context.Context, c models.Category) (int, error) {
	records, err := s.ListRecords(ctx, c)
	return len(records), err
}

// tutors

func (s *JSONStorage) readTutors() (document, []models.Tutor, error) {
	doc, err := s.read(tutorsTable)
	if err != nil {
		return nil, nil, err
	}
	tutors := []models.Tutor{}
	if err := getField(doc, tutorsTable, &tutors); err != nil {
		return nil, nil, err
	}
	if tutors == nil {
		tutors = []models.Tutor{}
	}
	return doc, tutors, nil
}

func (s *JSONStorage) writeTutors(doc document, tutors []models.Tutor) error {
	if err := setField(doc, tutorsTable, tutors); err != nil {
		return err
	}
	return s.write(tutorsTable, doc)
}

// ListTutors returns all tutors, newest first.
func (s *JSONStorage) ListTutors(ctx context.Context) ([]models.Tutor, error) {
	unlock, err := s.lock(ctx, tutorsTable)
	if err != nil {
		return nil, err
	}
	defer unlock()
	_, tutors, err := s.readTutors()
	return tutors, err
}

// CreateTutor puts tutor at the front of the table.
func (s *JSONStorage) CreateTutor(ctx context.Context, tutor *models.Tutor) error {
	unlock, err := s.lock(ctx, tutorsTable)
	if err != nil {
		return err
	}
	defer unlock()

	doc, tutors, err := s.readTutors()
	if err != nil {
		return err
	}
	for _, t := range tutors {
		if t.ID == tutor.ID {
			return fmt.Errorf("tutor %s: %w", tutor.ID, ErrDuplicate)
		}
	}
	tutors = append([]models.Tutor{*tutor}, tutors...)
	return s.writeTutors(doc, tutors)
}

// UpdateTutor applies fn to the tutor with id.
func (s *JSONStorage) UpdateTutor(ctx context.Context, id string, fn func(*models.Tutor) error) (*models.Tutor, error) {
	unlock, err := s.lock(ctx, tutorsTable)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, tutors, err := s.readTutors()
	if err != nil {
		return nil, err
	}
	for i := range tutors {
		if tutors[i].ID != id {
			continue
		}
		t := tutors[i]
		if err := fn(&t); err != nil {
			return nil, err
		}
		t.ID = id
		tutors[i] = t
		if err := s.writeTutors(doc, tutors); err != nil {
			return nil, err
		}
		return &t, nil
	}
	return nil, fmt.Errorf("tutor %s: %w", id, ErrNotFound)
}

// DeleteTutor removes the tutor with id.
func (s *JSONStorage) DeleteTutor(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, tutorsTable)
	if err != nil {
		return err
	}
	defer unlock()

	doc, tutors, err := s.readTutors()
	if err != nil {
		return err
	}
	for i, t := range tutors {
		if t.ID == id {
			return s.writeTutors(doc, append(tutors[:i], tutors[i+1:]...))
		}
	}
	return fmt.Errorf("tutor %s: %w", id, ErrNotFound)
}

// users

func (s *JSONStorage) readUsers() (document, []models.User, models.UsersMetadata, error) {
	var meta models.UsersMetadata
	doc, err := s.read(usersTable)
	if err != nil {
		return nil, nil, meta, err
	}
	users := []models.User{}
	if err := getField(doc, usersTable, &users); err != nil {
		return nil, nil, meta, err
	}
	if err := getField(doc, metadataKey, &meta); err != nil {
		return nil, nil, meta, err
	}
	if users == nil {
		users = []models.User{}
	}
	return doc, users, meta, nil
}

func (s *JSONStorage) writeUsers(doc document, users []models.User) error {
	meta := models.UsersMetadata{TotalUsers: len(users), LastUpdated: time.Now().UTC()}
	if err := setField(doc, usersTable, users); err != nil {
		return err
	}
	if err := setField(doc, metadataKey, meta); err != nil {
		return err
	}
	return s.write(usersTable, doc)
}

// ListUsers returns stored users, passwords included, and the table metadata.
func (s *JSONStorage) ListUsers(ctx context.Context) ([]models.User, models.UsersMetadata, error) {
	unlock, err := s.lock(ctx, usersTable)
	if err != nil {
		return nil, models.UsersMetadata{}, err
	}
	defer unlock()
	_, users, meta, err := s.readUsers()
	if err == nil && meta.TotalUsers == 0 {
		meta.TotalUsers = len(users)
	}
	return users, meta, err
}

// GetUser returns the user with studentID.
func (s *JSONStorage) GetUser(ctx context.Context, studentID string) (*models.User, error) {
	users, _, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.StudentID == studentID {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", studentID, ErrNotFound)
}

// CreateUser appends user unless the student ID is taken.
func (s *JSONStorage) CreateUser(ctx context.Context, user *models.User) error {
	unlock, err := s.lock(ctx, usersTable)
	if err != nil {
		return err
	}
	defer unlock()

	doc, users, _, err := s.readUsers()
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.StudentID == user.StudentID {
			return fmt.Errorf("user %s: %w", user.StudentID, ErrDuplicate)
		}
	}
	return s.writeUsers(doc, append(users, *user))
}

// UpdateUser applies fn to the user with studentID. The student ID never changes.
func (s *JSONStorage) UpdateUser(ctx context.Context, studentID string, fn func(*models.User) error) (*models.User, error) {
	unlock, err := s.lock(ctx, usersTable)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, users, _, err := s.readUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].StudentID != studentID {
			continue
		}
		u := users[i]
		if err := fn(&u); err != nil {
			return nil, err
		}
		u.StudentID = studentID
		users[i] = u
		if err := s.writeUsers(doc, users); err != nil {
			return nil, err
		}
		return &u, nil
	}
	return nil, fmt.Errorf("user %s: %w", studentID, ErrNotFound)
}

// Close is a no-op; every operation opens and closes its own file.
func (s *JSONStorage) Close() error {
	return nil
}
