package library

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/storage"
)

// ErrTutorNameRequired is returned when a tutor has no name.
var ErrTutorNameRequired = errors.New("tutor name is required")

// Tutors manages tutor profiles.
type Tutors struct {
	store storage.Storage
	now   func() time.Time

	mu     sync.Mutex
	lastMS int64
}

// NewTutors returns a tutor service backed by store. A nil now uses time.Now.
func NewTutors(store storage.Storage, now func() time.Time) *Tutors {
	if now == nil {
		now = time.Now
	}
	return &Tutors{store: store, now: now}
}

// nextID returns "tut_<unix millis>", bumped past the previous ID when two
// tutors are created within the same millisecond.
func (t *Tutors) nextID(at time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ms := at.UnixMilli()
	if ms <= t.lastMS {
		ms = t.lastMS + 1
	}
	t.lastMS = ms
	return "tut_" + strconv.FormatInt(ms, 10)
}

// List returns all tutors, newest first.
func (t *Tutors) List(ctx context.Context) ([]models.Tutor, error) {
	return t.store.ListTutors(ctx)
}

// Create stores a new tutor built from p. Name is required.
func (t *Tutors) Create(ctx context.Context, p models.TutorPatch) (*models.Tutor, error) {
	if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
		return nil, ErrTutorNameRequired
	}
	now := t.now().UTC()
	tutor := models.Tutor{ID: t.nextID(now), CreatedAt: now}
	p.Apply(&tutor)
	if err := t.store.CreateTutor(ctx, &tutor); err != nil {
		return nil, err
	}
	return &tutor, nil
}

// Update applies the supplied fields of p to the tutor with id.
func (t *Tutors) Update(ctx context.Context, id string, p models.TutorPatch) (*models.Tutor, error) {
	return t.store.UpdateTutor(ctx, id, func(tu *models.Tutor) error {
		p.Apply(tu)
		return nil
	})
}

// Delete removes the tutor with id.
func (t *Tutors) Delete(ctx context.Context, id string) error {
	return t.store.DeleteTutor(ctx, id)
}
